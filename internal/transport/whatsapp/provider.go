// Package whatsapp implements the session provider on top of whatsmeow.
// Device keys live in a local sqlite database; pairing codes are surfaced as
// session events.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"remindbot/internal/session"
	logx "remindbot/pkg/logx"
)

var errNotInitialized = errors.New("whatsapp: client not initialized")

type Config struct {
	StorePath   string
	LogLevel    string
	QRFile      string
	SendTimeout time.Duration
}

type Provider struct {
	cfg Config
	log logx.Logger

	mu        sync.Mutex
	container *sqlstore.Container
	client    *whatsmeow.Client
	qrCancel  context.CancelFunc
	handler   func(session.Event)
}

func New(cfg Config, log logx.Logger) *Provider {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Provider{cfg: cfg, log: log.With(logx.String("comp", "whatsapp"))}
}

func (p *Provider) SetHandler(h func(session.Event)) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *Provider) emit(ev session.Event) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// Initialize opens the device store and connects. Without a stored device a
// QR channel is opened first so pairing codes are emitted as EventQR.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		if p.client.IsConnected() {
			return nil
		}
		return p.client.Connect()
	}

	if err := os.MkdirAll(filepath.Dir(p.cfg.StorePath), 0o755); err != nil {
		return fmt.Errorf("whatsapp: create store dir: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite", dsn(p.cfg.StorePath), newWALogger(p.log, "db", "WARN"))
	if err != nil {
		return fmt.Errorf("whatsapp: open store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return fmt.Errorf("whatsapp: load device: %w", err)
	}

	client := whatsmeow.NewClient(device, newWALogger(p.log, "client", p.cfg.LogLevel))
	client.AddEventHandler(p.onEvent)

	if client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		ch, err := client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			_ = container.Close()
			return fmt.Errorf("whatsapp: qr channel: %w", err)
		}
		p.qrCancel = cancel
		go p.pumpQR(ch)
	} else {
		p.log.Info("stored session found; reconnecting", logx.String("jid", client.Store.ID.String()))
	}

	if err := client.Connect(); err != nil {
		if p.qrCancel != nil {
			p.qrCancel()
			p.qrCancel = nil
		}
		_ = container.Close()
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	p.container = container
	p.client = client
	return nil
}

func (p *Provider) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		ev, ok := mapQRItem(item.Event, item.Code, item.Error)
		if !ok {
			continue
		}
		if ev.Kind == session.EventQR && p.cfg.QRFile != "" {
			if err := qrcode.WriteFile(ev.Code, qrcode.Medium, 512, p.cfg.QRFile); err != nil {
				p.log.Warn("qr file write failed", logx.String("path", p.cfg.QRFile), logx.Err(err))
			} else {
				p.log.Info("pairing qr written", logx.String("path", p.cfg.QRFile))
			}
		}
		p.emit(ev)
	}
}

func (p *Provider) onEvent(evt any) {
	if ev, ok := mapEvent(evt); ok {
		p.emit(ev)
	}
}

// Logout unlinks the device. It is a no-op without a paired device.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil || client.Store.ID == nil {
		return nil
	}
	if err := client.Logout(ctx); err != nil {
		return fmt.Errorf("whatsapp: logout: %w", err)
	}
	return nil
}

// Destroy disconnects and releases the device store.
func (p *Provider) Destroy(context.Context) error {
	p.mu.Lock()
	client, container, cancel := p.client, p.container, p.qrCancel
	p.client, p.container, p.qrCancel = nil, nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Disconnect()
	}
	if container != nil {
		if err := container.Close(); err != nil {
			return fmt.Errorf("whatsapp: close store: %w", err)
		}
	}
	return nil
}

func (p *Provider) connected() (*whatsmeow.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil, errNotInitialized
	}
	return p.client, nil
}

// Chats returns the joined groups.
func (p *Provider) Chats(ctx context.Context) ([]session.Chat, error) {
	client, err := p.connected()
	if err != nil {
		return nil, err
	}
	groups, err := client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: joined groups: %w", err)
	}
	out := make([]session.Chat, 0, len(groups))
	for _, g := range groups {
		if g == nil {
			continue
		}
		out = append(out, session.Chat{ID: g.JID.String(), Name: strings.TrimSpace(g.Name), IsGroup: true})
	}
	return out, nil
}

func (p *Provider) SendText(ctx context.Context, id, text string) error {
	client, err := p.connected()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(id)
	if err != nil {
		return fmt.Errorf("whatsapp: invalid jid %q: %w", id, err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()
	_, err = client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	return err
}
