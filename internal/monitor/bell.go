package monitor

import (
	"io"
	"sync"
	"time"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// BellNotifier rings the terminal bell on every signal.
type BellNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewBellNotifier(w io.Writer) *BellNotifier {
	return &BellNotifier{w: w}
}

func (b *BellNotifier) SendSignal(time.Time, []models.DerivedRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.w.Write([]byte{'\a'})
	return err
}

func (b *BellNotifier) SendError(error) error { return nil }

func (b *BellNotifier) SendRecovery(int) error { return nil }
