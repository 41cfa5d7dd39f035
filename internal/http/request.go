package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"spendyze/internal/core"
)

var (
	errMissingFields = errors.New("Please add all required fields")
	errBodyTooLarge  = errors.New("request body too large")
	errBadBody       = errors.New("Invalid request body")
)

// decodeJSON reads one JSON value from the body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errBodyTooLarge
		case errors.Is(err, core.ErrInvalidAmount):
			return core.ErrInvalidAmount
		case errors.Is(err, io.EOF):
			return errBadBody
		default:
			return fmt.Errorf("%w: %v", errBadBody, err)
		}
	}
	return nil
}

// writeDecodeError reports a decodeJSON failure.
func writeDecodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, core.ErrInvalidAmount):
		writeMessage(w, http.StatusBadRequest, core.ErrInvalidAmount.Error())
	default:
		writeMessage(w, http.StatusBadRequest, errBadBody.Error())
	}
}

type transactionInput struct {
	Type        string      `json:"type"`
	Title       string      `json:"title"`
	Amount      *core.Money `json:"amount"`
	Date        core.Date   `json:"date"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
}

// toTransaction checks presence of required fields; a zero amount counts as
// missing. Field validation is left to core.Transaction.Validate.
func (in transactionInput) toTransaction() (core.Transaction, error) {
	tx := core.Transaction{
		Type:        core.TransactionType(sanitizeInput(in.Type)),
		Title:       sanitizeInput(in.Title),
		Date:        in.Date,
		Category:    sanitizeInput(in.Category),
		Description: sanitizeInput(in.Description),
	}
	if in.Amount != nil {
		tx.Amount = *in.Amount
	}
	if tx.Type == "" || tx.Title == "" || tx.Amount.Cents == 0 || tx.Date.IsZero() || tx.Category == "" {
		return core.Transaction{}, errMissingFields
	}
	return tx, nil
}

type scanInput struct {
	Image    string `json:"image"`
	MIMEType string `json:"mimeType"`
}

// decodeImage accepts raw base64 or a data URL and returns the bytes and
// the MIME type, if one was given.
func decodeImage(in scanInput) ([]byte, string, error) {
	data := strings.TrimSpace(in.Image)
	mime := strings.TrimSpace(in.MIMEType)
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, "", errBadBody
		}
		if m := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"); m != "" {
			mime = m
		}
		data = payload
	}
	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		img, err = base64.RawStdEncoding.DecodeString(data)
	}
	if err != nil || len(img) == 0 {
		return nil, "", errBadBody
	}
	return img, mime, nil
}
