package telegram

import (
	"sync"
	"testing"
)

// The context watcher and Stop both try to stop telebot at shutdown.
// stopBot must tolerate racing callers and repeated calls; the real stop
// handshake blocks on a channel send, so running it twice would leak a
// goroutine.
func TestStopBotIdempotent(t *testing.T) {
	t.Parallel()
	a := &Adapter{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.stopBot()
		}()
	}
	wg.Wait()
	a.stopBot()

	// The once must be consumed by the first call: any later attempt is a
	// no-op even if a bot were reachable by then.
	ran := false
	a.stopOnce.Do(func() { ran = true })
	if ran {
		t.Fatal("stop guard not consumed by stopBot")
	}
}
