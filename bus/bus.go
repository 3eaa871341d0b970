package bus

import (
	"context"

	"github.com/aep/cursorkv/logging"
)

var log = logging.New()

// ChangesTopic carries api.Change notifications for every successful write.
const ChangesTopic = "cursorkv.changes"

// Bus fans a message out to every receiver currently waiting on the topic.
// Messages sent while nobody waits are dropped.
type Bus interface {
	Send(topic string, v []byte) error
	Recv(ctx context.Context, topic string) ([]byte, error)
	Close()
}
