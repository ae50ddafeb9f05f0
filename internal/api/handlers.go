package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"tgproxy/internal/channel"
	"tgproxy/internal/storage"
	logx "tgproxy/pkg/logx"
)

const (
	maxBodyBytes       = 1 << 20
	pingFailureMessage = "Background workers canceled"
	defaultDeliveries  = 50
	maxDeliveries      = 1000
)

var (
	errBadRequest = errors.New("bad request")
	errNoJournal  = errors.New("Delivery journal is disabled")
)

type handlers struct {
	reg     *channel.Registry
	journal storage.Store
	log     logx.Logger
}

func (h *handlers) ping(w http.ResponseWriter, _ *http.Request) {
	health := h.reg.Health()
	fields := map[string]any{"workers": health.Workers}
	if len(health.Errors) > 0 {
		fields["errors"] = health.Errors
	}
	if health.Healthy() {
		success(w, fields)
		return
	}
	failure(w, http.StatusInternalServerError, pingFailureMessage, fields)
}

func (h *handlers) index(w http.ResponseWriter, _ *http.Request) {
	chs := h.reg.Channels()
	out := make(map[string]string, len(chs))
	for _, ch := range chs {
		out[ch.Name()] = ch.Describe()
	}
	success(w, map[string]any{"channels": out})
}

func (h *handlers) send(w http.ResponseWriter, r *http.Request) {
	ch, err := h.reg.Get(r.PathValue("channel"))
	if err != nil {
		writeError(w, err)
		return
	}
	values, err := requestValues(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := ch.NewMessage(values)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ch.Put(msg); err != nil {
		h.log.Warn("message rejected", logx.String("channel", ch.Name()), logx.String("request_id", msg.RequestID()), logx.Err(err))
		writeError(w, err)
		return
	}
	h.log.Debug("message queued", logx.String("channel", ch.Name()), logx.String("message", msg.String()))
	success(w, map[string]any{"request_id": msg.RequestID()})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	ch, err := h.reg.Get(r.PathValue("channel"))
	if err != nil {
		writeError(w, err)
		return
	}
	s := ch.Stats()
	fields := map[string]any{
		"queued": s.Queued,
		"sended": s.Sended,
		"errors": s.Errors,
	}
	if s.LastError != "" {
		fields["last_error"] = s.LastError
	}
	if s.LastSendedAt != 0 {
		fields["last_sended_at"] = s.LastSendedAt
	}
	if s.LastErrorAt != 0 {
		fields["last_error_at"] = s.LastErrorAt
	}
	success(w, fields)
}

func (h *handlers) deliveries(w http.ResponseWriter, r *http.Request) {
	ch, err := h.reg.Get(r.PathValue("channel"))
	if err != nil {
		writeError(w, err)
		return
	}
	if h.journal == nil {
		writeError(w, errNoJournal)
		return
	}
	limit := defaultDeliveries
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = min(n, maxDeliveries)
	}
	recs, err := h.journal.RecentDeliveries(r.Context(), ch.Name(), limit)
	if err != nil {
		h.log.Error("journal read failed", logx.String("channel", ch.Name()), logx.Err(err))
		writeError(w, err)
		return
	}
	success(w, map[string]any{"deliveries": recs})
}

// requestValues reads form fields (urlencoded or multipart) or a flat JSON
// object. Repeated form keys keep the first value.
func requestValues(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if ct == "application/json" {
		var raw map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
		}
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			switch x := v.(type) {
			case nil:
				continue
			case string:
				out[k] = x
			case json.Number, bool:
				out[k] = fmt.Sprint(x)
			default:
				return nil, fmt.Errorf("%w: field %q must be a scalar", errBadRequest, k)
			}
		}
		return out, nil
	}

	var err error
	if strings.HasPrefix(ct, "multipart/") {
		err = r.ParseMultipartForm(maxBodyBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	out := make(map[string]string, len(r.Form))
	for k, vs := range r.Form {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out, nil
}
