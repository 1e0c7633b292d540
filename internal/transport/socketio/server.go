// Package socketio provides the Socket.io boundary between the backend
// and the desktop shell: transport commands and media-key signals in,
// playback state snapshots and player errors out.
package socketio

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/lbraun/chorale/internal/domain/catalog"
	"github.com/lbraun/chorale/internal/domain/player"
	"github.com/lbraun/chorale/internal/domain/streaming"
	"github.com/lbraun/chorale/internal/domain/streaming/webplayer"
)

// broadcastWindow is the debounce window for state broadcasts. Position
// ticks arrive about once a second; anything under that collapses
// command bursts without making the UI feel stale.
const broadcastWindow = 150 * time.Millisecond

// CatalogService is the token-authenticated client the transport
// drives: credential login plus the shared catalog read surface.
type CatalogService interface {
	streaming.Service
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
}

// WebSession is the cookie-session fallback client: interactive
// browser login plus the shared catalog read surface.
type WebSession interface {
	streaming.Service
	OpenAuthWindow(ctx context.Context) (webplayer.Session, error)
	IsAuthenticated() bool
	Logout(ctx context.Context)
}

// Server handles Socket.io connections and events.
type Server struct {
	io         *socket.Server
	controller *player.Controller
	catalog    CatalogService
	web        WebSession
	debouncer  *BroadcastDebouncer
	limiter    *ConnectionLimiter

	mu      sync.RWMutex
	clients map[string]*socket.Socket

	stateHandle player.ListenerHandle
	errorHandle player.ListenerHandle
}

// NewServer creates a Socket.io server bound to the playback controller
// and the streaming clients. webSvc may be nil when no web-player
// fallback is configured. State changes fan out to all connected
// clients, debounced so position ticks collapse.
func NewServer(controller *player.Controller, catalogSvc CatalogService, webSvc WebSession, maxExternal int) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	server := socket.NewServer(nil, opts)

	s := &Server{
		io:         server,
		controller: controller,
		catalog:    catalogSvc,
		web:        webSvc,
		limiter:    NewConnectionLimiter(maxExternal),
		clients:    make(map[string]*socket.Socket),
	}
	s.debouncer = NewBroadcastDebouncer(broadcastWindow, s.BroadcastState)

	s.stateHandle = controller.AddListener(func(player.State) {
		s.debouncer.Trigger()
	})
	s.errorHandle = controller.AddErrorListener(func(playerErr *player.Error) {
		s.io.Emit("playerError", playerErr)
	})

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		remoteIP := clientIP(client)

		_, evictedID := s.limiter.TryAdd(clientID, remoteIP)
		if evictedID != "" {
			s.disconnectClient(evictedID)
		}

		log.Info().Str("id", clientID).Str("ip", remoteIP).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(client)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		// Transport commands
		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			s.pushState(client)
		})

		client.On("play-pause", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("play-pause")
			s.controller.TogglePlayPause()
		})

		client.On("next", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("next")
			if err := s.controller.Next(context.Background()); err != nil {
				log.Error().Err(err).Msg("Next failed")
			}
		})

		client.On("previous", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("previous")
			if err := s.controller.Previous(context.Background()); err != nil {
				log.Error().Err(err).Msg("Previous failed")
			}
		})

		client.On("stop", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("stop")
			s.controller.Stop()
		})

		client.On("seek", func(args ...any) {
			if pos, ok := floatArg(args); ok {
				log.Debug().Str("id", clientID).Float64("pos", pos).Msg("seek")
				s.controller.Seek(pos)
			}
		})

		client.On("volume", func(args ...any) {
			if vol, ok := floatArg(args); ok {
				log.Debug().Str("id", clientID).Float64("vol", vol).Msg("volume")
				s.controller.SetVolume(vol)
			}
		})

		client.On("playQueue", func(args ...any) {
			var payload playQueuePayload
			if !decodeArg(args, &payload) {
				return
			}
			log.Debug().Str("id", clientID).Int("tracks", len(payload.Tracks)).Int("startIndex", payload.StartIndex).Msg("playQueue")

			if err := s.controller.PlayQueue(context.Background(), payload.Tracks, payload.StartIndex); err != nil {
				log.Error().Err(err).Msg("PlayQueue failed")
				client.Emit("playerError", &player.Error{
					Code:      player.CodePlayback,
					Message:   err.Error(),
					Retryable: false,
				})
			}
		})

		// Session and catalog events
		client.On("login", func(args ...any) {
			var payload loginPayload
			if !decodeArg(args, &payload) {
				return
			}
			log.Debug().Str("id", clientID).Str("username", payload.Username).Msg("login")

			result := loginResult{Success: true}
			if err := s.catalog.Login(context.Background(), payload.Username, payload.Password); err != nil {
				log.Warn().Err(err).Msg("Login failed")
				result = loginResult{Success: false, Error: err.Error()}
			}
			client.Emit("loginResult", result)
		})

		client.On("webLogin", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("webLogin")
			if s.web == nil {
				client.Emit("webLoginResult", webLoginResult{Error: "web player not configured"})
				return
			}
			// The interactive login blocks until the user finishes or
			// the poll budget runs out; it must not stall the event loop.
			go func() {
				session, err := s.web.OpenAuthWindow(context.Background())
				if err != nil {
					log.Warn().Err(err).Msg("Web-player login failed")
					client.Emit("webLoginResult", webLoginResult{Error: err.Error()})
					return
				}
				client.Emit("webLoginResult", webLoginResult{Success: true, Username: session.Username})
			}()
		})

		client.On("logout", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("logout")
			if err := s.catalog.Logout(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Logout failed")
			}
			if s.web != nil && s.web.IsAuthenticated() {
				s.web.Logout(context.Background())
			}
			s.controller.Stop()
			client.Emit("logoutResult", map[string]any{"success": true})
		})

		client.On("search", func(args ...any) {
			var payload searchPayload
			if !decodeArg(args, &payload) {
				return
			}
			log.Debug().Str("id", clientID).Str("query", payload.Query).Msg("search")

			tracks, err := s.activeService().SearchTracks(context.Background(), payload.Query, payload.Limit)
			if err != nil {
				log.Warn().Err(err).Msg("Search failed")
				client.Emit("searchResults", searchResults{Query: payload.Query, Error: err.Error()})
				return
			}
			client.Emit("searchResults", searchResults{Query: payload.Query, Tracks: tracks})
		})
	})
}

type playQueuePayload struct {
	Tracks     []catalog.Track `json:"tracks"`
	StartIndex int             `json:"startIndex"`
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type webLoginResult struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
	Error    string `json:"error,omitempty"`
}

type searchPayload struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResults struct {
	Query  string          `json:"query"`
	Tracks []catalog.Track `json:"tracks"`
	Error  string          `json:"error,omitempty"`
}

// floatArg extracts a single numeric event argument.
func floatArg(args []any) (float64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	v, ok := args[0].(float64)
	return v, ok
}

// decodeArg maps the first event argument onto out through JSON. The
// transport delivers objects as map[string]any; a round-trip is the
// simplest faithful mapping onto typed payloads.
func decodeArg(args []any, out any) bool {
	if len(args) == 0 {
		return false
	}
	data, err := json.Marshal(args[0])
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Debug().Err(err).Msg("Malformed event payload")
		return false
	}
	return true
}

// clientIP extracts the remote IP of a connected socket.
func clientIP(client *socket.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if ip, _, err := net.SplitHostPort(handshake.Address); err == nil {
		return ip
	}
	return handshake.Address
}

// activeService returns the read client of whichever session is
// active. The web-player session is interactive and user-chosen, so it
// wins over the token client while it is live.
func (s *Server) activeService() streaming.Service {
	if s.web != nil && s.web.IsAuthenticated() {
		return s.web
	}
	return s.catalog
}

// pushState sends the current playback state to a single client.
func (s *Server) pushState(client *socket.Socket) {
	client.Emit("playbackState", s.controller.State())
}

// BroadcastState sends the playback state to all connected clients.
func (s *Server) BroadcastState() {
	state := s.controller.State()
	s.io.Emit("playbackState", state)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(state)
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().RawJSON("state", data).Int("clients", clientCount).Msg("Broadcast state")
	}
}

// disconnectClient force-closes a connection evicted by the limiter.
func (s *Server) disconnectClient(clientID string) {
	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	log.Info().Str("id", clientID).Msg("Evicting oldest external client")
	client.Disconnect(true)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close detaches from the controller and shuts down the Socket.io
// server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.controller.RemoveListener(s.stateHandle)
	s.controller.RemoveErrorListener(s.errorHandle)
	s.io.Close(nil)
	return nil
}
