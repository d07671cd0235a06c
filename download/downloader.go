package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

const DefaultURL = "https://cdn.altstore.io/file/altstore/altstore.ipa"

// Downloader fetches the default application archive.
type Downloader struct {
	URL    string
	Client *resty.Client
	// Quiet disables the progress bar.
	Quiet bool
}

func NewDownloader(url string) *Downloader {
	if url == "" {
		url = DefaultURL
	}
	return &Downloader{
		URL:    url,
		Client: resty.New().SetTimeout(10 * time.Minute),
	}
}

// Download streams the archive to <dir>/<uuid>.ipa and returns that path.
func (d *Downloader) Download(ctx context.Context, dir string) (string, error) {
	client := d.Client
	if client == nil {
		client = resty.New()
	}
	log.WithField("url", d.URL).Info("Downloading application...")
	response, err := client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(d.URL)
	if err != nil {
		return "", err
	}
	body := response.RawBody()
	defer body.Close()
	if response.StatusCode() != 200 {
		return "", fmt.Errorf("download %s: status %d", d.URL, response.StatusCode())
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.New().String()+".ipa")
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}

	size := response.RawResponse.ContentLength
	written, err := d.copy(out, body, size)
	if e := out.Close(); err == nil {
		err = e
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	if size > 0 && written != size {
		os.Remove(path)
		return "", fmt.Errorf("download %s: got %d of %d bytes", d.URL, written, size)
	}
	log.WithField("size", humanize.Bytes(uint64(written))).Debug("download finished")
	return path, nil
}

func (d *Downloader) copy(dst io.Writer, src io.Reader, size int64) (int64, error) {
	if d.Quiet {
		return io.Copy(dst, src)
	}
	p := mpb.New(
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)
	total := size
	if total < 0 {
		total = 0
	}
	bar := p.New(total,
		mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("|"),
		mpb.PrependDecorators(
			decor.CountersKibiByte("\t% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "✅ "),
			decor.Name(" ] "),
			decor.AverageSpeed(decor.SizeB1024(0), "% .2f", decor.WCSyncWidth),
		),
	)
	proxy := bar.ProxyReader(src)
	written, err := io.Copy(dst, proxy)
	proxy.Close()
	if err != nil {
		bar.Abort(false)
	} else {
		bar.SetTotal(-1, true)
	}
	p.Wait()
	return written, err
}
