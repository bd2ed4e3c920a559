package downloader

import (
	"context"
	"io"

	"drivefetch/internal"
	"drivefetch/utils"
)

// copyBufferSize is the chunk size used when streaming a response to disk
const copyBufferSize = 32 * 1024

// saveBody streams body into a new file at path. On any failure the file is
// removed so no partial download is left behind.
func (e *Engine) saveBody(ctx context.Context, body io.Reader, path string, total int64) error {
	file, err := e.fileOps.Create(path)
	if err != nil {
		return internal.NewIOError("create", path, err)
	}

	tracker := utils.NewProgressTrackerWithWriter(total, e.config.Quiet, e.progressOut)
	tracker.OnReport(func(current int64) {
		internal.LogDebug("%s: %s", path, utils.FormatMegabytes(current))
	})

	op := "write"
	buf := make([]byte, copyBufferSize)
	var copyErr error
	for copyErr == nil {
		if err := ctx.Err(); err != nil {
			op, copyErr = "download", err
			break
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				copyErr = err
				break
			}
			tracker.Add(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			op, copyErr = "read body for", readErr
		}
	}

	summary := tracker.Finish()
	if err := file.Close(); err != nil && copyErr == nil {
		op, copyErr = "close", err
	}

	if copyErr != nil {
		e.fileOps.RemoveQuietly(path)
		return internal.NewIOError(op, path, copyErr)
	}

	internal.LogDebug("Saved %s: %s", path, summary)
	return nil
}
