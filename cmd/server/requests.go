package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

// userRequest is the body of POST /users. It either registers an account
// (username + password, no session) or updates the caller's bio.
type userRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Bio      *string `json:"bio"`
}

func (u userRequest) isRegistration(sessionUser string) bool {
	return u.Username != "" && u.Password != "" && sessionUser == ""
}

func (u userRequest) isBioUpdate(sessionUser string) bool {
	return u.Bio != nil && sessionUser != ""
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type contentRequest struct {
	Text     string  `json:"text"`
	ImageURL *string `json:"imageUrl"`
}

type followRequest struct {
	Username string `json:"username"`
}

// decodeJSON reads a single JSON object into dst. An empty body decodes to
// the zero value so presence checks stay in the services.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidBody
	}
	return nil
}
