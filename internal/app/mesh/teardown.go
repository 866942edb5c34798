package mesh

import (
	"github.com/rs/zerolog/log"
)

// Leave closes every link, releases local media and disconnects signaling.
// It is safe to call any number of times and from any goroutine.
func (c *Coordinator) Leave() {
	c.leaveOnce.Do(func() {
		c.mu.Lock()
		c.leaving = true
		started := c.started
		c.mu.Unlock()
		if started {
			c.send(leaveRequest{})
			<-c.loopDone
		} else {
			c.stopQueue()
		}
		c.teardown()
	})
}

func (c *Coordinator) teardown() {
	c.teardownOnce.Do(func() {
		closed := c.registry.CloseAll()
		c.media.Release()
		c.identity.Close()

		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		c.setPhase(PhaseLeft, nil)
		log.Info().Str("module", "app.mesh").Str("room", string(c.opts.Room)).Int("closed", closed).Msg("left call")
	})
}
