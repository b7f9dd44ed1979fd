package progress

import (
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Download renders a single download bar on stderr. A zero size shows a
// spinner-style indeterminate bar.
type Download struct {
	container *mpb.Progress
	bar       *mpb.Bar
}

// NewDownload starts a progress bar for one file.
func NewDownload(description string, size int64) *Download {
	container := mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithRefreshRate(150*time.Millisecond),
	)

	bar := container.AddBar(size,
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Spinner(spinner, decor.WCSyncSpaceR),
			decor.Name(description, decor.WCSyncSpaceR),
			decor.CountersKibiByte("%.2f/%.2f", decor.WCSyncSpace),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.EwmaSpeed(decor.SizeB1024(0), "%.2f", 30, decor.WCSyncSpace),
			decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WCSyncSpace),
		),
	)

	return &Download{container: container, bar: bar}
}

// Reader wraps r so reads advance the bar.
func (d *Download) Reader(r io.Reader) io.Reader {
	return d.bar.ProxyReader(r)
}

// Done completes the bar and waits for the final render.
func (d *Download) Done() {
	d.bar.SetTotal(-1, true)
	d.container.Wait()
}
