package hubd

import (
	"bytes"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerRequestID      = "X-Request-Id"
	headerReplayed       = "Idempotent-Replayed"
)

// IdempotencyKey stores the first response to a keyed write request.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:192"`
	RequestID string `gorm:"size:64"`
	Method    string `gorm:"size:8"`
	Path      string `gorm:"size:255"`
	Status    int
	Response  string `gorm:"type:text"`
	CreatedAt time.Time
}

// TableName pins the table name.
func (IdempotencyKey) TableName() string { return "idempotency_keys" }

// MigrateIdempotency creates the idempotency table.
func MigrateIdempotency(db *gorm.DB) error {
	return db.AutoMigrate(&IdempotencyKey{})
}

type idempotency struct {
	db     *gorm.DB
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newIdempotency(db *gorm.DB, logger *slog.Logger) *idempotency {
	if logger == nil {
		logger = slog.Default()
	}
	return &idempotency{db: db, logger: logger, inflight: make(map[string]*keyLock)}
}

// lock serialises requests sharing a key.
func (i *idempotency) lock(key string) func() {
	i.mu.Lock()
	l, ok := i.inflight[key]
	if !ok {
		l = &keyLock{}
		i.inflight[key] = l
	}
	l.refs++
	i.mu.Unlock()
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		i.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(i.inflight, key)
		}
		i.mu.Unlock()
	}
}

// Middleware replays the stored response when a caller repeats a key. Keys
// are scoped to the authenticated caller. Server errors are not stored so the
// request can be retried.
func (i *idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
		if raw == "" || i == nil || i.db == nil {
			next.ServeHTTP(w, r)
			return
		}
		if len(raw) > 128 {
			writeError(w, badRequest("idempotency key too long"))
			return
		}
		caller, _ := CallerFrom(r.Context())
		key := hex.EncodeToString(caller[:]) + ":" + raw
		unlock := i.lock(key)
		defer unlock()

		var record IdempotencyKey
		if err := i.db.WithContext(r.Context()).First(&record, "key = ?", key).Error; err == nil {
			if record.Method != r.Method || record.Path != r.URL.Path {
				writeError(w, &Error{Status: http.StatusUnprocessableEntity, Code: "idempotency_mismatch", Message: "idempotency key reused for a different request"})
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(headerReplayed, "true")
			w.Header().Set(headerRequestID, record.RequestID)
			w.WriteHeader(record.Status)
			_, _ = io.WriteString(w, record.Response)
			return
		}

		requestID := uuid.NewString()
		w.Header().Set(headerRequestID, requestID)
		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if recorder.status >= http.StatusInternalServerError {
			return
		}
		err := i.db.WithContext(r.Context()).Create(&IdempotencyKey{
			Key:       key,
			RequestID: requestID,
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    recorder.status,
			Response:  recorder.buf.String(),
			CreatedAt: time.Now().UTC(),
		}).Error
		if err != nil {
			// A retry with this key will execute the operation again.
			i.logger.Warn("idempotency record not stored", "key", raw, "request_id", requestID, "error", err)
		}
	})
}

// responseRecorder captures the response for idempotent operations.
type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}
