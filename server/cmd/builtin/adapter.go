package builtin

import (
	"time"

	"github.com/mangosd-go/vmserver/server/vmap"
)

// serverAdapter is the slice of the top-level Server that admin commands are
// allowed to touch. Keeping it as a narrow interface lets command tests
// stand up a fake without constructing a real Server.
type serverAdapter interface {
	StartTime() time.Time
	Close() error

	NumInstances() uint32
	NumPlayersInInstances() uint32
	LoopCount() uint64
	PreferredThreads() int
	CurrentThreads() int
	Load() float64

	Sweep() []vmap.ID
	Reactivate(threads int)
	KillWorker(id vmap.WorkerID)
}
