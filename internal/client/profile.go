package client

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/chronologos/rscreen/internal/reassembly"
	"github.com/chronologos/rscreen/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// logProfile emits a periodic traffic/frame line to stderr.
// Called from the receive loop every profileInterval when Profile is enabled.
func (c *Client) logProfile() {
	s := &c.stats
	elapsed := time.Since(c.profileStart).Seconds()
	fps := 0.0
	if elapsed > 0 {
		fps = float64(s.Frames.Load()) / elapsed
	}
	fmt.Fprintf(c.stderr, "[profile] frames=%d (%.1f fps) decode_fail=%d dgrams=%d recv=%s rejected=%d restarts=%d overwritten=%d timeouts=%d\n",
		s.Frames.Load(),
		fps,
		s.DecodeFailures.Load(),
		s.Datagrams.Load(),
		formatBytes(s.Bytes.Load()),
		s.Rejected.Load(),
		s.Restarts.Load(),
		s.Overwritten.Load(),
		s.Timeouts.Load(),
	)
}

// logProfileSummary emits a final summary to stderr and writes it as JSON.
// Called via defer in Run when Profile is enabled.
func (c *Client) logProfileSummary() {
	p := c.profile(time.Now())
	fmt.Fprintf(c.stderr, "[profile] === Receive Profile ===\n")
	fmt.Fprintf(c.stderr, "[profile] Duration: %s\n", time.Duration(p.DurationS*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(c.stderr, "[profile] Frames: completed=%d published=%d overwritten=%d decode_fail=%d\n",
		p.Frames.Completed, p.Frames.Published, p.Frames.Overwritten, p.Frames.DecodeFailures)
	fmt.Fprintf(c.stderr, "[profile] Fragments: dgrams=%d recv=%s accepted=%d rejected=%d restarts=%d dup=%d\n",
		p.Fragments.Datagrams, formatBytes(p.Fragments.Bytes), p.Fragments.Accepted,
		p.Fragments.Rejected, p.Fragments.Restarts, p.Fragments.Duplicates)
	for reason, n := range p.Fragments.Rejections {
		fmt.Fprintf(c.stderr, "[profile]   rejected %s: %d\n", reason, n)
	}
	fmt.Fprintf(c.stderr, "[profile] Keepalives: %d\n", p.Timeouts)

	c.writeProfileJSON(p)
}

// profileJSON is the structured summary written on exit.
type profileJSON struct {
	Timestamp string           `json:"timestamp"`
	Commit    string           `json:"commit"`
	Protocol  string           `json:"protocol"`
	DurationS float64          `json:"duration_s"`
	Frames    profileFrames    `json:"frames"`
	Fragments profileFragments `json:"fragments"`
	Timeouts  uint64           `json:"timeouts"`
}

type profileFrames struct {
	Completed      uint64 `json:"completed"`
	Published      uint64 `json:"published"`
	Overwritten    uint64 `json:"overwritten"`
	DecodeFailures uint64 `json:"decode_failures"`
}

type profileFragments struct {
	Datagrams  uint64            `json:"datagrams"`
	Bytes      uint64            `json:"bytes"`
	Accepted   uint64            `json:"accepted"`
	Rejected   uint64            `json:"rejected"`
	Restarts   uint64            `json:"restarts"`
	Duplicates uint64            `json:"duplicates"`
	Rejections map[string]uint64 `json:"rejections,omitempty"`
}

func (c *Client) profile(now time.Time) profileJSON {
	s := &c.stats
	p := profileJSON{
		Timestamp: now.UTC().Format(time.RFC3339),
		Commit:    version.Commit,
		Protocol:  c.cfg.Variant.Name,
		DurationS: now.Sub(c.profileStart).Seconds(),
		Frames: profileFrames{
			Completed:      s.Frames.Load(),
			Published:      s.Published.Load(),
			Overwritten:    s.Overwritten.Load(),
			DecodeFailures: s.DecodeFailures.Load(),
		},
		Fragments: profileFragments{
			Datagrams:  s.Datagrams.Load(),
			Bytes:      s.Bytes.Load(),
			Accepted:   s.Accepted.Load(),
			Rejected:   s.Rejected.Load(),
			Restarts:   s.Restarts.Load(),
			Duplicates: s.Duplicates.Load(),
		},
		Timeouts: s.Timeouts.Load(),
	}
	for r := reassembly.ReasonNoFrame; r <= reassembly.ReasonTooLarge; r++ {
		if n := c.Rejections(r); n > 0 {
			if p.Fragments.Rejections == nil {
				p.Fragments.Rejections = make(map[string]uint64)
			}
			p.Fragments.Rejections[r.String()] = n
		}
	}
	return p
}

// writeProfileJSON dumps the summary to <dir>/rscreen-profile-<timestamp>.json.
func (c *Client) writeProfileJSON(p profileJSON) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		c.log.Warn("profile: json marshal failed", zap.Error(err))
		return
	}

	dir := c.cfg.ProfileDir
	if dir == "" {
		dir = os.TempDir()
	}
	filename := filepath.Join(dir, fmt.Sprintf("rscreen-profile-%s.json", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(filename, data, 0644); err != nil {
		fmt.Fprintf(c.stderr, "[profile] write %s: %v\n", filename, err)
		return
	}

	fmt.Fprintf(c.stderr, "[profile] wrote %s\n", filename)
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1fGB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%dB", b)
	}
}
