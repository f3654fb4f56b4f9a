// Command irischeck probes the Iris bridge: /config over HTTP, then a short
// WebSocket session that prints incoming room messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	appcfg "github.com/park285/court-queue/internal/config"
	"github.com/park285/court-queue/internal/iris"
)

func main() {
	watch := flag.Duration("watch", 10*time.Second, "how long to print WebSocket messages")
	room := flag.String("send", "", "room to post a test reply to")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.IrisBaseURL == "" {
		log.Fatal("IRIS_BASE_URL is required")
	}

	headers := func() map[string]string {
		return map[string]string{
			"X-User-Id":    cfg.XUserID,
			"X-User-Email": cfg.XUserEmail,
			"X-Session-Id": cfg.XSessionID,
		}
	}

	client := iris.NewClient(cfg.IrisBaseURL,
		iris.WithHeaderProvider(headers),
		iris.WithTimeout(8*time.Second),
		iris.WithRetry(1),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if c, err := client.GetConfig(ctx); err != nil {
		log.Printf("/config error: %v", err)
	} else {
		log.Printf("/config ok: bot=%s port=%d endpoint=%s", c.BotName, c.BotHTTPPort, c.WebServerEndpoint)
	}

	if *room != "" {
		if err := client.SendMessage(ctx, *room, "court-queue connectivity check"); err != nil {
			log.Printf("/reply error: %v", err)
		} else {
			log.Printf("/reply ok: room=%s", *room)
		}
	}

	if cfg.IrisWSURL == "" {
		log.Println("IRIS_WS_URL not set; skipping WS check")
		return
	}

	ws := iris.NewWebSocket(cfg.IrisWSURL, 0)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state iris.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(msg *iris.Message) {
		fmt.Printf("WS msg room=%s from=%s text=%q\n", msg.Room, msg.SenderID(), msg.Msg)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	time.Sleep(*watch)

	sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer scancel()
	_ = ws.Close(sctx)
}
