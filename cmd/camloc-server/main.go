package main

import (
	"context"
	"flag"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/camloc/camloc/compass"
	"github.com/camloc/camloc/service"
)

func main() {
	port := flag.Int("port", service.MainPort, "UDP port to listen on")
	validForMs := flag.Int("valid-for-ms", 500, "how long a position fix stays valid without a new update")
	minAngleDeg := flag.Float64("min-angle-deg", 15.0, "minimum bearing-angle difference between two rays to triangulate")
	httpPort := flag.Int("http", 0, "HTTP/WebSocket port for the event feed (e.g. 8080). 0 to disable.")
	compassPort := flag.String("compass-port", "", "serial port of an external compass (optional)")
	compassBaud := flag.Int("compass-baud", 9600, "baud rate for the compass serial port")
	flag.Parse()

	cfg := service.Config{
		Port:         *port,
		ValidFor:     time.Duration(*validForMs) * time.Millisecond,
		MinAngleDiff: *minAngleDeg * math.Pi / 180,
	}

	svc, err := service.New(cfg)
	if err != nil {
		log.Fatalf("camloc-server: %v", err)
	}

	if *compassPort != "" {
		sc, err := compass.OpenSerial(*compassPort, *compassBaud)
		if err != nil {
			log.Fatalf("camloc-server: open compass: %v", err)
		}
		defer sc.Close()
		svc.AddCompass(sc)
		go func() {
			if err := sc.Monitor(context.Background()); err != nil {
				log.Printf("camloc-server: compass monitor stopped: %v", err)
			}
		}()
	}

	if *httpPort > 0 {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", svc.Hub().ServeWS)
		go func() {
			log.Printf("camloc-server: serving event feed on :%d/ws", *httpPort)
			if err := http.ListenAndServe(":"+strconv.Itoa(*httpPort), mux); err != nil {
				log.Printf("camloc-server: http server stopped: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("camloc-server: shutting down...")
		cancel()
	}()

	log.Printf("camloc-server: listening on UDP :%d", *port)
	if err := svc.Run(ctx); err != nil {
		log.Printf("camloc-server: run stopped: %v", err)
	}
	svc.Stop()
}
