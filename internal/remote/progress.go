package remote

import "io"

// ProgressFunc receives upload progress as bytes sent out of a total.
type ProgressFunc func(sent, total int64)

// progressReader counts bytes as they are read out of the wrapped
// reader, reporting after each chunk. The transport reads the request
// body, so counting reads tracks bytes handed to the network.
type progressReader struct {
	r        io.Reader
	total    int64
	sent     int64
	progress ProgressFunc
}

func newProgressReader(r io.Reader, total int64, progress ProgressFunc) io.Reader {
	if progress == nil {
		return r
	}
	return &progressReader{r: r, total: total, progress: progress}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.sent += int64(n)
		pr.progress(pr.sent, pr.total)
	}
	return n, err
}
