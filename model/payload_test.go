package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const insertPayload = `{
  "payload_type": "whatsapp_webhook",
  "metaData": {
    "entry": [{
      "changes": [{
        "field": "messages",
        "value": {
          "messaging_product": "whatsapp",
          "contacts": [{"profile": {"name": "Alice"}, "wa_id": "555"}],
          "messages": [{
            "from": "555",
            "id": "m1",
            "timestamp": "1000",
            "text": {"body": "hi"},
            "type": "text"
          }]
        }
      }]
    }]
  }
}`

const statusPayload = `{
  "metaData": {
    "entry": [{
      "changes": [{
        "value": {
          "statuses": [
            {"id": "m1", "status": "read"},
            {"meta_msg_id": "m2", "status": "delivered"},
            {"status": "read"},
            {"id": "m3", "status": "exploded"}
          ]
        }
      }]
    }]
  }
}`

func unit(body string) PayloadUnit {
	return PayloadUnit{Source: "test", Body: json.RawMessage(body)}
}

func TestPayloadUnit_ExtractInsert(t *testing.T) {
	ext, err := unit(insertPayload).Extract()
	require.NoError(t, err)

	require.Len(t, ext.Inserts, 1)
	assert.Equal(t, NewMessage("m1", "555", "Alice", "hi", 1000), ext.Inserts[0])
	assert.Empty(t, ext.Statuses)
	assert.Zero(t, ext.Malformed)
}

func TestPayloadUnit_ExtractStatuses(t *testing.T) {
	ext, err := unit(statusPayload).Extract()
	require.NoError(t, err)

	assert.Equal(t, []StatusUpdate{
		{MessageID: "m1", Status: StatusRead},
		{MessageID: "m2", Status: StatusDelivered},
	}, ext.Statuses)
	assert.Equal(t, 2, ext.Malformed)
}

func TestPayloadUnit_ExtractMessageWithoutText(t *testing.T) {
	body := `{"metaData":{"entry":[{"changes":[{"value":{
		"contacts":[{"wa_id":"555","profile":{"name":"Alice"}}],
		"messages":[{"id":"img1","from":"555","timestamp":"42","type":"image"}]}}]}]}}`

	ext, err := unit(body).Extract()
	require.NoError(t, err)
	require.Len(t, ext.Inserts, 1)
	assert.Equal(t, "", ext.Inserts[0].Text)
}

func TestPayloadUnit_ExtractFallsBackToSender(t *testing.T) {
	body := `{"metaData":{"entry":[{"changes":[{"value":{
		"messages":[{"id":"x","from":"777","timestamp":"1"}]}}]}]}}`

	ext, err := unit(body).Extract()
	require.NoError(t, err)
	require.Len(t, ext.Inserts, 1)
	assert.Equal(t, "777", ext.Inserts[0].ConversationID)
}

func TestPayloadUnit_ExtractMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"no metaData", `{"foo": 1}`},
		{"empty entry", `{"metaData": {"entry": []}}`},
		{"no changes", `{"metaData": {"entry": [{}]}}`},
		{"no value", `{"metaData": {"entry": [{"changes": [{"field": "messages"}]}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unit(tt.body).Extract()
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestPayloadUnit_ExtractBadRecords(t *testing.T) {
	body := `{"metaData":{"entry":[{"changes":[{"value":{
		"contacts":[{"wa_id":"555"}],
		"messages":[
			{"from":"555","timestamp":"1"},
			{"id":"m9","from":"555","timestamp":"soon"},
			{"id":"m10","from":"555","timestamp":"10"}
		]}}]}]}}`

	ext, err := unit(body).Extract()
	require.NoError(t, err)
	assert.Equal(t, 2, ext.Malformed)
	require.Len(t, ext.Inserts, 1)
	assert.Equal(t, "m10", ext.Inserts[0].ID)
}

func TestPayloadUnit_ExtractRejectsOutgoingPrefix(t *testing.T) {
	body := `{"metaData":{"entry":[{"changes":[{"value":{
		"contacts":[{"wa_id":"555"}],
		"messages":[
			{"id":"frontend-01J0000000000000000000000","from":"555","timestamp":"1","text":{"body":"spoofed"}},
			{"id":"wamid.frontend-1","from":"555","timestamp":"2","text":{"body":"ok"}}
		]}}]}]}}`

	ext, err := unit(body).Extract()
	require.NoError(t, err)
	assert.Equal(t, 1, ext.Malformed)
	require.Len(t, ext.Inserts, 1)
	assert.Equal(t, "wamid.frontend-1", ext.Inserts[0].ID)
	assert.False(t, ext.Inserts[0].IsOutgoing())
}

func TestIngestionReport_Add(t *testing.T) {
	r := IngestionReport{Inserted: 1, Malformed: 1}
	r.Add(IngestionReport{Inserted: 2, SkippedDuplicate: 3, StatusUpdated: 4, StatusNotFound: 5, Failed: 6})

	assert.Equal(t, IngestionReport{
		Inserted:         3,
		SkippedDuplicate: 3,
		StatusUpdated:    4,
		StatusNotFound:   5,
		Malformed:        1,
		Failed:           6,
	}, r)
}

func TestNewWebhookUnit(t *testing.T) {
	bare := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{
		"contacts":[{"wa_id":"555","profile":{"name":"Alice"}}],
		"messages":[{"id":"m1","from":"555","timestamp":"1000","text":{"body":"hi"}}]}}]}]}`

	ext, err := NewWebhookUnit("webhook", []byte(bare)).Extract()
	require.NoError(t, err)
	require.Len(t, ext.Inserts, 1)
	assert.Equal(t, NewMessage("m1", "555", "Alice", "hi", 1000), ext.Inserts[0])

	wrapped := NewWebhookUnit("webhook", []byte(insertPayload))
	assert.JSONEq(t, insertPayload, string(wrapped.Body))

	_, err = NewWebhookUnit("webhook", []byte(`nope`)).Extract()
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
