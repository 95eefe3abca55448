package main

import (
	"sync"
	"time"

	"ambientcast.app/ambientcast/engine"
	"ambientcast.app/ambientcast/playback"
)

// playerSet remembers every engine player handed out so shutdown can wait
// for their outputs to close before the audio library is terminated.
type playerSet struct {
	mu      sync.Mutex
	players []*engine.Player
}

func (ps *playerSet) track(newPlayer playback.PlayerFactory) playback.PlayerFactory {
	return func(sound playback.Sound) (playback.MediaPlayer, error) {
		mp, err := newPlayer(sound)
		if err != nil {
			return nil, err
		}
		if p, ok := mp.(*engine.Player); ok {
			ps.mu.Lock()
			ps.players = append(ps.players, p)
			ps.mu.Unlock()
		}
		return mp, nil
	}
}

// wait blocks until every tracked player has exited. Players still running
// after timeout are released. It reports whether all of them exited.
func (ps *playerSet) wait(timeout time.Duration) bool {
	ps.mu.Lock()
	players := append([]*engine.Player(nil), ps.players...)
	ps.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for _, p := range players {
		select {
		case <-p.Done():
			continue
		case <-deadline.C:
		}

		for _, p := range players {
			p.Release()
		}
		return waitAll(players, time.Second)
	}
	return true
}

func waitAll(players []*engine.Player, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for _, p := range players {
		select {
		case <-p.Done():
		case <-deadline:
			return false
		}
	}
	return true
}
