package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/domain"
	"github.com/golang-jwt/jwt/v4"
)

// ImportHandler serves POST /import for web hosts. The bearer token's admin
// claim becomes the caller's admin flag.
type ImportHandler struct {
	importer *app.Importer
	secret   []byte
}

func NewImportHandler(importer *app.Importer, secret string) *ImportHandler {
	return &ImportHandler{importer: importer, secret: []byte(strings.TrimSpace(secret))}
}

type importRequest struct {
	Group string `json:"group"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

func (h *ImportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorPayload{Message: "method not allowed"})
		return
	}
	caller, err := h.authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorPayload{Message: err.Error()})
		return
	}

	var body importRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid json body"})
		return
	}
	if body.Group == "" || body.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "group and url are required"})
		return
	}
	groupID := webScope(body.Group)
	caller.GroupID = groupID

	fileName := body.URL
	if u, err := url.Parse(body.URL); err == nil {
		fileName = u.Path
	}
	res, err := h.importer.Import(r.Context(), app.ImportRequest{
		Caller:   caller,
		GroupID:  groupID,
		Name:     body.Name,
		URL:      body.URL,
		FileName: fileName,
	})
	if err != nil {
		log.Printf("import into group %s failed: %v", body.Group, err)
		writeJSON(w, importStatus(err), errorPayload{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// authenticate verifies an HS256 bearer token and reads sub and admin claims.
func (h *ImportHandler) authenticate(r *http.Request) (domain.Caller, error) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return domain.Caller{}, errors.New("missing bearer token")
	}
	if len(h.secret) == 0 {
		return domain.Caller{}, errors.New("imports are disabled")
	}
	raw := strings.TrimSpace(authz[7:])

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return h.secret, nil
	})
	if err != nil || !tok.Valid {
		return domain.Caller{}, errors.New("invalid token")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Caller{}, errors.New("invalid token claims")
	}

	caller := domain.Caller{}
	if sub, ok := claims["sub"].(string); ok {
		caller.UserID = sub
	}
	if admin, ok := claims["admin"].(bool); ok {
		caller.Admin = admin
	}
	return caller, nil
}

func importStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrParseFailure), errors.Is(err, domain.ErrEmptyResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
