package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/ai-relay/internal/auditlog"
	"gorm.io/gorm"
)

func openTestRepo(t *testing.T) (*auditlog.Repo, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo := auditlog.NewRepo(db)
	if err := repo.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo, db
}

func TestConsumer_RedeliveryWritesOnce(t *testing.T) {
	repo, db := openTestRepo(t)
	c := NewConsumer(NewStorePersister(repo))

	style := "formal"
	body, _ := json.Marshal(Record{
		CorrelationID:    "0b7a4c5e-1111-4000-8000-000000000001",
		SubmissionText:   "bio text",
		StyleExample:     &style,
		Model:            "gpt-4",
		PromptTokens:     3,
		CompletionTokens: 5,
		ResponseData:     json.RawMessage(`{"model":"gpt-4"}`),
	})

	for i := 0; i < 2; i++ {
		id, err := c.Handle(context.Background(), body)
		if err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
		if id != "0b7a4c5e-1111-4000-8000-000000000001" {
			t.Fatalf("unexpected id %q", id)
		}
	}

	var n int64
	if err := db.Model(&auditlog.LogRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 record, got %d", n)
	}

	got, err := repo.GetByCorrelationID(context.Background(), "0b7a4c5e-1111-4000-8000-000000000001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StyleExample == nil || *got.StyleExample != "formal" {
		t.Fatalf("style example not stored: %v", got.StyleExample)
	}
	if got.PromptTokens != 3 || got.CompletionTokens != 5 {
		t.Fatalf("unexpected tokens: %d/%d", got.PromptTokens, got.CompletionTokens)
	}
}

func TestConsumer_RejectsBadMessages(t *testing.T) {
	repo, _ := openTestRepo(t)
	c := NewConsumer(NewStorePersister(repo))

	cases := map[string][]byte{
		"not json":        []byte("{"),
		"missing id":      []byte(`{"submission_text":"x","response_data":{}}`),
		"missing payload": []byte(`{"correlation_id":"x","submission_text":"x"}`),
	}
	for name, body := range cases {
		if _, err := c.Handle(context.Background(), body); !errors.Is(err, ErrBadMessage) {
			t.Fatalf("%s: expected ErrBadMessage, got %v", name, err)
		}
	}
}

type recordingPublisher struct {
	correlationID string
	body          []byte
}

func (p *recordingPublisher) PublishLog(ctx context.Context, correlationID string, body []byte) error {
	p.correlationID = correlationID
	p.body = append([]byte(nil), body...)
	return nil
}

func TestQueuePersister_PublishesRecord(t *testing.T) {
	pub := &recordingPublisher{}
	qp := NewQueuePersister(pub)

	rec := testRecord("0b7a4c5e-1111-4000-8000-000000000002")
	if err := qp.Persist(context.Background(), rec); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if pub.correlationID != rec.CorrelationID {
		t.Fatalf("unexpected correlation id %q", pub.correlationID)
	}

	var decoded Record
	if err := json.Unmarshal(pub.body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.SubmissionText != "hello" || string(decoded.ResponseData) != `{"model":"m"}` {
		t.Fatalf("unexpected published record: %+v", decoded)
	}
}
