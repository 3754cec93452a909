package session

import (
	"sync"

	"github.com/vntrieu/roomlink/internal/websocket"
)

// IdentityProvider supplies the local player. It is read on every connect and
// on every local-state poll.
type IdentityProvider interface {
	PlayerInfo() websocket.PlayerInfo
	ActivationCode() string
}

// LocalPlayer is an IdentityProvider whose job and profile can change at runtime.
type LocalPlayer struct {
	mu   sync.RWMutex
	info websocket.PlayerInfo
	code string
}

// NewLocalPlayer creates a LocalPlayer.
func NewLocalPlayer(info websocket.PlayerInfo, code string) *LocalPlayer {
	return &LocalPlayer{info: info, code: code}
}

func (p *LocalPlayer) PlayerInfo() websocket.PlayerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

func (p *LocalPlayer) ActivationCode() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.code
}

// SetJob changes the reported job. Empty values are ignored.
func (p *LocalPlayer) SetJob(job string) {
	if job == "" {
		return
	}
	p.mu.Lock()
	p.info.Job = job
	p.mu.Unlock()
}

// SetProfile changes the reported profile. Empty values are ignored.
func (p *LocalPlayer) SetProfile(profile string) {
	if profile == "" {
		return
	}
	p.mu.Lock()
	p.info.Profile = profile
	p.mu.Unlock()
}
