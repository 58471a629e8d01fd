package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sellerdesk/peony/pkg/models"
)

// IncomingMessage is one fetched Kafka message plus its parsed payload.
// Marketplace feeds publish either a single source record or an array of
// them per message.
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	Records []models.SourceRecord
}

// ParseRecords decodes the payload into source records. A JSON array
// becomes a batch; a single object becomes a batch of one.
func (m *IncomingMessage) ParseRecords() error {
	if len(m.Value) == 0 {
		return fmt.Errorf("empty message payload")
	}

	var batch []models.SourceRecord
	if err := json.Unmarshal(m.Value, &batch); err == nil {
		if len(batch) == 0 {
			return fmt.Errorf("message contains an empty record array")
		}
		m.Records = batch
		return nil
	}

	var single models.SourceRecord
	if err := json.Unmarshal(m.Value, &single); err != nil {
		return fmt.Errorf("payload is neither a source record nor an array of them: %w", err)
	}

	m.Records = []models.SourceRecord{single}
	return nil
}

// SourceHint returns the source header when the feed sets one, falling back
// to the first record's source field.
func (m *IncomingMessage) SourceHint() string {
	if s, ok := m.Headers["source"]; ok && s != "" {
		return s
	}
	if len(m.Records) > 0 {
		return m.Records[0].Source
	}
	return ""
}
