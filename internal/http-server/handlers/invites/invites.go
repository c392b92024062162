package invites

import (
	"context"
	"errors"
	"fmt"
	"invitetrack/entity"
	"invitetrack/lib/api/cont"
	"invitetrack/lib/api/response"
	"invitetrack/lib/errx"
	"invitetrack/lib/sl"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const (
	maxTopLimit  = 100
	maxJoinLimit = 100
)

type Core interface {
	Invites(ctx context.Context, guildID string) ([]entity.Invite, error)
	TotalUses(ctx context.Context, guildID string) (int, error)
	TopInviters(ctx context.Context, guildID string, limit int) ([]entity.InviterTotal, error)
	InviterUses(ctx context.Context, guildID, inviterID string) (int, error)
	MostUsed(ctx context.Context, guildID string) (*entity.Invite, error)
	ChannelInvites(ctx context.Context, channelID string) ([]entity.Invite, error)
	WhoInvited(ctx context.Context, guildID, memberID string) (*entity.Attribution, error)
	RecentJoins(ctx context.Context, guildID, inviterID string, limit int) ([]*entity.Attribution, error)
	CreateInvite(ctx context.Context, guildID string, req entity.InviteRequest) (*entity.Invite, error)
	DeleteInvite(ctx context.Context, guildID, code string) error
}

type Total struct {
	GuildID string `json:"guild_id"`
	Uses    int    `json:"uses"`
}

type InviterUses struct {
	GuildID   string `json:"guild_id"`
	InviterID string `json:"inviter_id"`
	Uses      int    `json:"uses"`
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.invites"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// guildScope returns the guild of the request when the caller may read it, and
// answers the request itself otherwise.
func guildScope(w http.ResponseWriter, r *http.Request, logger *slog.Logger, handler Core) (string, bool) {
	guildID := chi.URLParam(r, "guild")
	if handler == nil {
		logger.Error("invite service not available")
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("Invite service not available"))
		return "", false
	}
	if !isSnowflake(guildID) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("Invalid guild id"))
		return "", false
	}
	user := cont.GetUser(r.Context())
	if user == nil || !user.CanAccessGuild(guildID) {
		logger.With(sl.Guild(guildID)).Warn("guild access denied")
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("Access to guild denied"))
		return "", false
	}
	return guildID, true
}

// statusOf maps an error kind to the HTTP status returned to the client.
func statusOf(err error) int {
	switch errx.KindOf(err) {
	case errx.NotFound:
		return http.StatusNotFound
	case errx.Invalid:
		return http.StatusBadRequest
	case errx.Forbidden:
		return http.StatusForbidden
	case errx.Unavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func failed(w http.ResponseWriter, r *http.Request, logger *slog.Logger, action string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error(action, sl.Err(err))
	} else {
		logger.Warn(action, sl.Err(err))
	}
	render.Status(r, status)
	render.JSON(w, r, response.Error(fmt.Sprintf("%s: %v", action, err)))
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		guildID, ok := guildScope(w, r, logger, handler)
		if !ok {
			return
		}
		list, err := handler.Invites(r.Context(), guildID)
		if err != nil {
			failed(w, r, logger.With(sl.Guild(guildID)), "list invites", err)
			return
		}
		render.JSON(w, r, response.Ok(list))
	}
}

func TotalUses(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		guildID, ok := guildScope(w, r, logger, handler)
		if !ok {
			return
		}
		total, err := handler.TotalUses(r.Context(), guildID)
		if err != nil {
			failed(w, r, logger.With(sl.Guild(guildID)), "total uses", err)
			return
		}
		render.JSON(w, r, response.Ok(Total{GuildID: guildID, Uses: total}))
	}
}

// Top ranks inviters; the optional limit query parameter defaults to 10.
func Top(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		guildID, ok := guildScope(w, r, logger, handler)
		if !ok {
			return
		}
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > maxTopLimit {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error(fmt.Sprintf("Invalid limit: expected 1..%d", maxTopLimit)))
				return
			}
			limit = n
		}
		rows, err := handler.TopInviters(r.Context(), guildID, limit)
		if err != nil {
			failed(w, r, logger.With(sl.Guild(guildID)), "top inviters", err)
			return
		}
		render.JSON(w, r, response.Ok(rows))
	}
}

func MostUsed(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		guildID, ok := guildScope(w, r, logger, handler)
		if !ok {
			return
		}
		inv, err := handler.MostUsed(r.Context(), guildID)
		if err != nil {
			failed(w, r, logger.With(sl.Guild(guildID)), "most used invite", err)
			return
		}
		render.JSON(w, r, response.Ok(inv))
	}
}

func Inviter(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		guildID, ok := guildScope(w, r, logger, handler)
		if !ok {
			return
		}
		userID := chi.URLParam(r, "user")
		if !isSnowflake(userID) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid user id"))
			return
		}
		uses, err := handler.InviterUses(r.Context(), guildID, userID)
		if err != nil {
			failed(w, r, logger.With(sl.Guild(guildID)), "inviter uses", err)
			return
		}
		render.JSON(w, r, response.Ok(InviterUses{GuildID: guildID, InviterID: userID, Uses: uses}))
	}
}

func WhoInvited(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		guildID, ok := guildScope(w, r, logger, handler)
		if !ok {
			return
		}
		memberID := chi.URLParam(r, "user")
		if !isSnowflake(memberID) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid user id"))
			return
		}
		a, err := handler.WhoInvited(r.Context(), guildID, memberID)
		if err != nil {
			failed(w, r, logger.With(sl.Guild(guildID), sl.Member(memberID)), "who invited", err)
			return
		}
		render.JSON(w, r, response.Ok(a))
	}
}

// Joins lists recorded joins, newest first. Optional query parameters: inviter
// (a user id) and limit (1..100).
func Joins(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		guildID, ok := guildScope(w, r, logger, handler)
		if !ok {
			return
		}
		inviterID := r.URL.Query().Get("inviter")
		if inviterID != "" && !isSnowflake(inviterID) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid inviter id"))
			return
		}
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > maxJoinLimit {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error(fmt.Sprintf("Invalid limit: expected 1..%d", maxJoinLimit)))
				return
			}
			limit = n
		}
		joins, err := handler.RecentJoins(r.Context(), guildID, inviterID, limit)
		if err != nil {
			failed(w, r, logger.With(sl.Guild(guildID)), "recent joins", err)
			return
		}
		render.JSON(w, r, response.Ok(joins))
	}
}

// ChannelList lists the invites of one channel. Channel scoped tokens are not
// supported, so only tokens without a guild restriction may call it.
func ChannelList(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		if handler == nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("Invite service not available"))
			return
		}
		channelID := chi.URLParam(r, "channel")
		if !isSnowflake(channelID) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid channel id"))
			return
		}
		user := cont.GetUser(r.Context())
		if user == nil || len(user.Guilds) > 0 {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.Error("Access to channel denied"))
			return
		}
		list, err := handler.ChannelInvites(r.Context(), channelID)
		if err != nil {
			failed(w, r, logger.With(slog.String("channel_id", channelID)), "channel invites", err)
			return
		}
		render.JSON(w, r, response.Ok(list))
	}
}

func manager(w http.ResponseWriter, r *http.Request) bool {
	user := cont.GetUser(r.Context())
	if user == nil || !user.ManageInvites {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("Managing invites not allowed"))
		return false
	}
	return true
}

// Create makes an invite in the URL's channel. The body is optional:
// {"max_uses": 0..100, "max_age": seconds}.
func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		guildID, ok := guildScope(w, r, logger, handler)
		if !ok || !manager(w, r) {
			return
		}

		var req entity.InviteRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("decode request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		req.ChannelID = chi.URLParam(r, "channel")

		inv, err := handler.CreateInvite(r.Context(), guildID, req)
		if err != nil {
			failed(w, r, logger.With(sl.Guild(guildID)), "create invite", err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(inv))
	}
}

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		guildID, ok := guildScope(w, r, logger, handler)
		if !ok || !manager(w, r) {
			return
		}
		code := chi.URLParam(r, "code")
		if err := handler.DeleteInvite(r.Context(), guildID, code); err != nil {
			failed(w, r, logger.With(sl.Guild(guildID), slog.String("code", code)), "delete invite", err)
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}

func isSnowflake(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
