package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"example.com/socialfeed/internal/middleware"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/monitoring"
	"example.com/socialfeed/internal/oracle"
	"example.com/socialfeed/internal/social"
)

const statsQuery = "__me_stats"

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}

func fail(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": message})
}

func ok(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func badRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid request body"})
}

// errMessage maps a service error to its user-facing message.
func errMessage(err error) string {
	switch {
	case errors.Is(err, social.ErrUnauthenticated):
		return "Not logged in"
	case errors.Is(err, social.ErrDuplicateUsername):
		return "Username taken"
	case errors.Is(err, social.ErrInvalidCredentials):
		return "Invalid login"
	case errors.Is(err, social.ErrSelfFollow):
		return "Cannot follow yourself"
	case errors.Is(err, social.ErrAlreadyFollowing):
		return "Already following"
	case errors.Is(err, social.ErrEmptyPost):
		return "Missing content"
	case errors.Is(err, social.ErrMissingField):
		return "Missing fields"
	default:
		return "Server error"
	}
}

// logFailure logs only unexpected errors; domain rejections are normal traffic.
func logFailure(module, msg string, err error) {
	if errMessage(err) == "Server error" {
		logg.Error(module, msg, err)
		return
	}
	logg.Debug(module, msg+": "+err.Error())
}

// --- Accounts ---

// usersPostHandler registers an account or updates the caller's bio.
func (s *Server) usersPostHandler(w http.ResponseWriter, r *http.Request) {
	var body userRequest
	if err := decodeJSON(w, r, &body); err != nil {
		logg.Error("http/users", "Invalid request body", err)
		badRequest(w)
		return
	}

	user := middleware.UsernameFromContext(r.Context())

	switch {
	case body.isRegistration(user):
		if err := s.accounts.Register(r.Context(), body.Username, body.Password); err != nil {
			logFailure("http/users", "Registration failed", err)
			fail(w, errMessage(err))
			return
		}
		monitoring.RegisterSuccess.Inc()
		ok(w)

	case body.isBioUpdate(user):
		if err := s.accounts.UpdateBio(r.Context(), user, *body.Bio); err != nil {
			logFailure("http/users", "Bio update failed", err)
			fail(w, errMessage(err))
			return
		}
		logg.Info("http/users", "Bio updated for "+user)
		ok(w)

	default:
		fail(w, "Missing fields")
	}
}

// usersGetHandler searches accounts, or returns the caller's stats for
// q=__me_stats.
func (s *Server) usersGetHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	if q == statsQuery {
		stats, err := s.accounts.ProfileStats(r.Context(), middleware.UsernameFromContext(r.Context()))
		if err != nil {
			logFailure("http/users", "Profile stats failed", err)
			fail(w, errMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"mode":      "stats",
			"username":  stats.Username,
			"bio":       stats.Bio,
			"followers": stats.FollowerCount,
			"following": stats.FollowingCount,
		})
		return
	}

	results, err := s.accounts.SearchAccounts(r.Context(), q)
	if err != nil {
		logFailure("http/users", "Account search failed", err)
		writeJSON(w, http.StatusOK, map[string]any{"results": []models.AccountSummary{}, "error": errMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// --- Sessions ---

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		logg.Error("http/login", "Invalid request body", err)
		badRequest(w)
		return
	}

	stats, token, err := s.accounts.Authenticate(r.Context(), body.Username, body.Password)
	if err != nil {
		logFailure("http/login", "Login failed", err)
		monitoring.LoginFailure.WithLabelValues(loginFailureReason(err)).Inc()
		fail(w, errMessage(err))
		return
	}

	s.setSessionCookie(w, token)
	monitoring.LoginSuccess.Inc()
	logg.Info("http/login", "User "+stats.Username+" logged in")

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"username":       stats.Username,
		"bio":            stats.Bio,
		"followerCount":  stats.FollowerCount,
		"followingCount": stats.FollowingCount,
	})
}

func loginFailureReason(err error) string {
	switch {
	case errors.Is(err, social.ErrMissingField):
		return "missing_fields"
	case errors.Is(err, social.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "server_error"
	}
}

func (s *Server) sessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	user := middleware.UsernameFromContext(r.Context())
	if user == "" {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}

	stats, err := s.accounts.ProfileStats(r.Context(), user)
	if err != nil {
		logFailure("http/login", "Session status failed", err)
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false, "message": errMessage(err)})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loggedIn":       true,
		"username":       stats.Username,
		"bio":            stats.Bio,
		"followerCount":  stats.FollowerCount,
		"followingCount": stats.FollowingCount,
	})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())

	if err := s.accounts.Logout(r.Context(), token); err != nil {
		logg.Error("http/login", "Logout failed", err)
		fail(w, "Logout failed")
		return
	}

	s.clearSessionCookie(w)
	ok(w)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    token,
		Path:     s.cookiePath(),
		MaxAge:   int(s.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     s.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) cookiePath() string {
	if s.opts.BasePath == "" {
		return "/"
	}
	return s.opts.BasePath
}

// --- Posts and feeds ---

func (s *Server) publishHandler(w http.ResponseWriter, r *http.Request) {
	var body contentRequest
	if err := decodeJSON(w, r, &body); err != nil {
		logg.Error("http/contents", "Invalid request body", err)
		badRequest(w)
		return
	}

	user := middleware.UsernameFromContext(r.Context())
	if _, err := s.feed.Publish(r.Context(), user, body.Text, body.ImageURL); err != nil {
		logFailure("http/contents", "Publish failed", err)
		fail(w, errMessage(err))
		return
	}

	monitoring.PostsPublished.Inc()
	logg.Info("http/contents", "Post created by "+user)
	ok(w)
}

func (s *Server) globalFeedHandler(w http.ResponseWriter, r *http.Request) {
	posts, err := s.feed.ListGlobal(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		logFailure("http/contents", "Global feed failed", err)
		writeJSON(w, http.StatusOK, map[string]any{"results": []models.Post{}, "error": errMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": posts})
}

func (s *Server) personalFeedHandler(w http.ResponseWriter, r *http.Request) {
	user := middleware.UsernameFromContext(r.Context())
	if user == "" {
		fail(w, errMessage(social.ErrUnauthenticated))
		return
	}

	posts, err := s.feed.ListPersonal(r.Context(), user)
	if err != nil {
		logFailure("http/feed", "Personal feed failed for "+user, err)
		fail(w, errMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": posts})
}

func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	entries, err := s.feed.Activity(r.Context(), middleware.UsernameFromContext(r.Context()), limit)
	if err != nil {
		logFailure("http/activity", "Activity failed", err)
		fail(w, errMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": entries})
}

// --- Follows ---

func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	s.handleFollowChange(w, r, true)
}

func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	s.handleFollowChange(w, r, false)
}

func (s *Server) handleFollowChange(w http.ResponseWriter, r *http.Request, follow bool) {
	var body followRequest
	if err := decodeJSON(w, r, &body); err != nil {
		logg.Error("http/follow", "Invalid request body", err)
		badRequest(w)
		return
	}

	user := middleware.UsernameFromContext(r.Context())

	var err error
	if follow {
		err = s.accounts.Follow(r.Context(), user, body.Username)
	} else {
		err = s.accounts.Unfollow(r.Context(), user, body.Username)
	}
	if err != nil {
		logFailure("http/follow", "Follow change failed", err)
		if errors.Is(err, social.ErrMissingField) {
			fail(w, "Missing username")
			return
		}
		fail(w, errMessage(err))
		return
	}

	if follow {
		monitoring.FollowsCreated.Inc()
		logg.Info("http/follow", "User "+user+" followed "+body.Username)
	} else {
		logg.Info("http/follow", "User "+user+" unfollowed "+body.Username)
	}
	ok(w)
}

func (s *Server) listFollowingHandler(w http.ResponseWriter, r *http.Request) {
	user := middleware.UsernameFromContext(r.Context())
	if user == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": errMessage(social.ErrUnauthenticated), "following": []string{}})
		return
	}

	following, err := s.accounts.ListFollowing(r.Context(), user)
	if err != nil {
		logFailure("http/follow", "List following failed", err)
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": errMessage(err), "following": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "following": following})
}

// --- Uploads ---

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.UploadMaxBytes)

	file, header, err := r.FormFile("uploadFile")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"upload": false, "error": "File too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"upload": false, "error": "File missing"})
		return
	}
	defer file.Close()

	name, err := s.uploads.Save(header.Filename, file)
	if err != nil {
		logg.Error("http/upload", "Failed to save file", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"upload": false, "error": "Failed to save file"})
		return
	}

	logg.Info("http/upload", "Stored upload "+name)
	writeJSON(w, http.StatusOK, map[string]any{
		"upload":   true,
		"filename": name,
		"url":      s.opts.BasePath + "/uploads/" + name,
	})
}

// --- Misc ---

func (s *Server) oracleHandler(w http.ResponseWriter, r *http.Request) {
	reading, err := s.oracle.Fetch(r.Context())
	if err != nil {
		logg.Error("http/oracle", "Oracle fetch failed", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"message":  "Could not load mystic oracle",
			"fact":     oracle.SleepingFact,
			"imageUrl": nil,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"fact":     reading.Fact,
		"imageUrl": reading.ImageURL,
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "Server working"})
}
