package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordsSingleObject(t *testing.T) {
	msg := &IncomingMessage{
		Value: []byte(`{"source":"ozon","external_sku":"OZ-1","name":"Кетчуп Heinz 570г","brand":"Heinz"}`),
	}

	require.NoError(t, msg.ParseRecords())
	require.Len(t, msg.Records, 1)
	assert.Equal(t, "ozon", msg.Records[0].Source)
	assert.Equal(t, "OZ-1", msg.Records[0].ExternalSKU)
	assert.Equal(t, "Heinz", msg.Records[0].Brand)
}

func TestParseRecordsArray(t *testing.T) {
	msg := &IncomingMessage{
		Value: []byte(`[
			{"source":"ozon","external_sku":"OZ-1","name":"Кетчуп Heinz 570г"},
			{"source":"ozon","external_sku":"OZ-2","name":"Макароны Barilla 450г"}
		]`),
	}

	require.NoError(t, msg.ParseRecords())
	require.Len(t, msg.Records, 2)
	assert.Equal(t, "OZ-2", msg.Records[1].ExternalSKU)
}

func TestParseRecordsRejectsEmptyPayloads(t *testing.T) {
	assert.Error(t, (&IncomingMessage{}).ParseRecords())
	assert.Error(t, (&IncomingMessage{Value: []byte(`[]`)}).ParseRecords())
	assert.Error(t, (&IncomingMessage{Value: []byte(`not json`)}).ParseRecords())
}

func TestSourceHint(t *testing.T) {
	msg := &IncomingMessage{
		Headers: map[string]string{"source": "wildberries"},
	}
	assert.Equal(t, "wildberries", msg.SourceHint())

	msg = &IncomingMessage{Value: []byte(`{"source":"ozon","external_sku":"OZ-1","name":"Товар"}`)}
	require.NoError(t, msg.ParseRecords())
	assert.Equal(t, "ozon", msg.SourceHint())
}
