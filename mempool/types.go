package mempool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sugawarayuuta/sonnet"
)

// Log is a log hint attached to a pending transaction.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data,omitempty"`
}

// Event is a pending-transaction notification from the matchmaker feed.
// Logs is nil when the transaction exposed no log hints.
type Event struct {
	Hash common.Hash `json:"hash"`
	Logs []Log       `json:"logs"`
}

// DecodeEvent parses one feed message.
func DecodeEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := sonnet.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &ev, nil
}

// LogsWithTopic returns the logs whose first topic is topic, in feed order.
func (e *Event) LogsWithTopic(topic common.Hash) []Log {
	var out []Log
	for _, l := range e.Logs {
		if len(l.Topics) > 0 && l.Topics[0] == topic {
			out = append(out, l)
		}
	}
	return out
}
