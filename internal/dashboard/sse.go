package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/tracking"
	"github.com/gin-gonic/gin"
)

const defaultPollInterval = 3 * time.Second

// handleSSE streams a summary event every time the tracking file for :date
// changes on disk.
func handleSSE(dir string, poll time.Duration) gin.HandlerFunc {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return func(c *gin.Context) {
		date, ok := parseDate(c.Param("date"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYYMMDD or YYYY-MM-DD"})
			return
		}
		path := tracking.PathFor(dir, date)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		var lastMod time.Time
		emit := func() {
			info, err := os.Stat(path)
			if err != nil || !info.ModTime().After(lastMod) {
				return
			}
			f, err := tracking.Load(dir, date)
			if err != nil || f == nil {
				return
			}
			lastMod = info.ModTime()
			writeSSE(c.Writer, "summary", summarize(f))
			c.Writer.Flush()
		}
		emit()

		ctx := c.Request.Context()
		ticker := time.NewTicker(poll)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				emit()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
