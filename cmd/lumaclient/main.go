package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/lumachat/lumaclient/internal/cache"
	"github.com/lumachat/lumaclient/internal/client"
	"github.com/lumachat/lumaclient/internal/config"
	"github.com/lumachat/lumaclient/internal/creds"
	"github.com/lumachat/lumaclient/internal/feed"
	"github.com/lumachat/lumaclient/internal/readpos"
	"github.com/lumachat/lumaclient/internal/session"
	"github.com/lumachat/lumaclient/internal/stats"
	"github.com/lumachat/lumaclient/internal/store"
	"github.com/lumachat/lumaclient/internal/transport"
	"github.com/lumachat/lumaclient/internal/types"
)

var (
	configPath string
	serverURL  string
	wsURL      string
	timeout    time.Duration
)

func main() {
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.StringVar(&serverURL, "server-url", "", "REST base URL, overrides config")
	flag.StringVar(&wsURL, "ws-url", "", "websocket base URL, overrides config")
	flag.DurationVar(&timeout, "timeout", 0, "request timeout, overrides config")
	flag.Parse()

	logger := log.New(os.Stderr, "[lumaclient] ", log.LstdFlags)

	if configPath == "" {
		var err error
		if configPath, err = config.DefaultPath(); err != nil {
			logger.Fatal("config path:", err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("config:", err)
	}
	if serverURL != "" || wsURL != "" || timeout > 0 {
		if serverURL == "" {
			serverURL = cfg.ServerURL
		}
		if wsURL == "" {
			wsURL = cfg.WebsocketURL
		}
		if timeout <= 0 {
			timeout = cfg.RequestTimeout
		}
		if cfg, err = config.NewConfig(serverURL, wsURL, cfg.DataDir, timeout); err != nil {
			logger.Fatal("config:", err)
		}
	}

	credStore, err := creds.NewStore(cfg.DataDir)
	if err != nil {
		logger.Fatal("credential store:", err)
	}

	statsUpdater := stats.NewStatsUpdater()
	cacheSvc := cache.NewService(logger)
	tc := transport.NewClient(cfg.ServerURL, credStore, cfg.RequestTimeout, logger)
	api := client.NewClient(tc, cacheSvc, logger)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	ctx := context.Background()
	user, err := ensureSession(ctx, api, credStore, line)
	if err != nil {
		logger.Fatal("login:", err)
	}
	fmt.Printf("Signed in as %s\n", user.Username)

	msgStore := store.NewMessageStore(logger)
	tracker := readpos.NewTracker(api.UpdateRoomStatus, statsUpdater, logger)
	dialer := feed.NewDialer(cfg.WebsocketURL, credStore, statsUpdater, logger)
	mgr := session.NewManager(api, session.DialerFeed(dialer), msgStore, tracker, readpos.NewViewport(), statsUpdater, logger)
	defer func() {
		mgr.Close()
		msgStore.Reset()
		cacheSvc.Invalidate()
	}()

	mgr.SetUpdateHandler(func(roomId string) {
		if msg, ok := msgStore.Latest(roomId); ok {
			fmt.Printf("[%s] %s: %s\n", shortId(roomId), msg.Author.Username, msg.Content)
		}
	})
	mgr.SetAutoScrollHandler(func(roomId string) {
		// terminal output is always at the bottom, nothing to do
	})

	runLoop(ctx, line, api, mgr, cacheSvc)
}

func ensureSession(ctx context.Context, api *client.Client, credStore *creds.Store, line *liner.State) (types.User, error) {
	expired, err := credStore.Expired()
	if err == nil && !expired {
		user, err := api.CurrentUser(ctx)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, client.ErrUnauthenticated) {
			return types.User{}, err
		}
	} else if err != nil && !errors.Is(err, creds.ErrNoToken) {
		return types.User{}, err
	}

	username, err := line.Prompt("username: ")
	if err != nil {
		return types.User{}, err
	}
	password, err := line.PasswordPrompt("password: ")
	if err != nil {
		return types.User{}, err
	}

	user, token, err := api.Login(ctx, strings.TrimSpace(username), password)
	if err != nil {
		return types.User{}, fmt.Errorf("%s", client.DisplayText(err))
	}

	if err := credStore.SetToken(token); err != nil {
		return types.User{}, err
	}

	return user, nil
}

func runLoop(ctx context.Context, line *liner.State, api *client.Client, mgr *session.Manager, cacheSvc *cache.Service) {
	fmt.Println("commands: /servers /rooms <serverId> /open <roomId> /unread <msgId> /quit, anything else sends")

	for {
		input, err := line.Prompt("> ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return
		}
		if err != nil {
			fmt.Println("error:", err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !strings.HasPrefix(input, "/") {
			if err := mgr.Send(ctx, input); err != nil {
				fmt.Println("send failed:", err)
			}
			continue
		}

		cmd, arg, _ := strings.Cut(input, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "/quit":
			return
		case "/servers":
			listServers(ctx, api)
		case "/rooms":
			listRooms(ctx, api, arg)
		case "/open":
			openRoom(ctx, api, mgr, arg)
		case "/unread":
			markUnread(mgr, arg)
		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func listServers(ctx context.Context, api *client.Client) {
	servers, err := api.Servers(ctx)
	if err != nil {
		fmt.Println(client.DisplayText(err))
		return
	}

	for _, server := range servers {
		fmt.Printf("%s  %s\n", server.Id, server.Name)
	}
}

func listRooms(ctx context.Context, api *client.Client, serverId string) {
	if serverId == "" {
		fmt.Println("usage: /rooms <serverId>")
		return
	}

	rooms, err := api.Rooms(ctx, serverId)
	if errors.Is(err, client.ErrNotFound) {
		fmt.Println("server not found")
		return
	}
	if err != nil {
		fmt.Println(client.DisplayText(err))
		return
	}

	group := ""
	for _, room := range rooms {
		if room.GroupName != group {
			group = room.GroupName
			fmt.Printf("%s:\n", group)
		}
		fmt.Printf("  %s  #%s\n", room.Id, room.Name)
	}
}

func openRoom(ctx context.Context, api *client.Client, mgr *session.Manager, roomId string) {
	if roomId == "" {
		fmt.Println("usage: /open <roomId>")
		return
	}

	room, err := api.Room(roomId)
	if errors.Is(err, client.ErrNotFound) {
		fmt.Println("room not found, list it with /rooms first")
		return
	}

	if err := mgr.Open(ctx, room); err != nil {
		fmt.Println("open failed:", err)
		return
	}

	fmt.Printf("#%s\n", room.Name)
	lastRead := mgr.Tracker().LastRead(room.Id)
	for _, msg := range mgr.Messages() {
		fmt.Printf("  %s: %s\n", msg.Author.Username, msg.Content)
		if msg.Id == lastRead && msg.Id != "" {
			fmt.Println("  --- unread ---")
		}
	}
}

func shortId(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func markUnread(mgr *session.Manager, msgId string) {
	roomId := mgr.ActiveRoom()
	if roomId == "" {
		fmt.Println("no open room")
		return
	}
	if msgId == "" {
		fmt.Println("usage: /unread <msgId>")
		return
	}

	mgr.Tracker().MarkUnread(roomId, msgId)
}
