package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/camloc/camloc/geo"
	"github.com/camloc/camloc/organizer"
)

func main() {
	action := flag.String("action", "scan", "scan | start-server | start-server-auto | stop")
	broadcast := flag.String("broadcast", "255.255.255.255:56797", "broadcast address:port to scan")
	host := flag.String("host", "", "target host address:port for start-server/stop")
	cubeFlag := flag.String("cube", "1,2,3,4", "comma-separated marker IDs for the cube's four faces")
	flag.Parse()

	o, err := organizer.New()
	if err != nil {
		log.Fatalf("camloc-organizer: %v", err)
	}
	defer o.Close()

	switch *action {
	case "scan":
		runScan(o, *broadcast)
	case "start-server":
		if *host == "" {
			log.Fatal("camloc-organizer: -host is required for start-server")
		}
		cube, err := parseCube(*cubeFlag)
		if err != nil {
			log.Fatalf("camloc-organizer: %v", err)
		}
		if err := o.StartServer(*host, cube); err != nil {
			log.Fatalf("camloc-organizer: start server: %v", err)
		}
		log.Printf("camloc-organizer: sent start-server to %s", *host)
	case "start-server-auto":
		cube, err := parseCube(*cubeFlag)
		if err != nil {
			log.Fatalf("camloc-organizer: %v", err)
		}
		selected, err := o.StartServerAuto(cube)
		switch {
		case err == nil:
			log.Printf("camloc-organizer: started %s as server", selected.IP)
		case errors.Is(err, organizer.ErrNoEligibleHost):
			log.Fatal("camloc-organizer: no idle client available to become server")
		default:
			var multi organizer.ErrMultipleEligibleHosts
			if errors.As(err, &multi) {
				log.Fatalf("camloc-organizer: %d idle clients found, rerun with -action=start-server -host=<ip:port>", multi.Count)
			}
			log.Fatalf("camloc-organizer: start server: %v", err)
		}
	case "stop":
		if *host == "" {
			log.Fatal("camloc-organizer: -host is required for stop")
		}
		if err := o.StopHost(*host); err != nil {
			log.Fatalf("camloc-organizer: stop host: %v", err)
		}
		log.Printf("camloc-organizer: sent stop to %s", *host)
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", *action)
		os.Exit(1)
	}
}

func runScan(o *organizer.Organizer, broadcast string) {
	if err := o.Scan(broadcast); err != nil {
		log.Fatalf("camloc-organizer: scan: %v", err)
	}
	hosts := o.Hosts()
	if len(hosts) == 0 {
		fmt.Println("no hosts found")
		return
	}
	for _, h := range hosts {
		fmt.Println(h)
	}
}

func parseCube(s string) (geo.Cube, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.Cube{}, fmt.Errorf("cube must have exactly 4 marker IDs, got %d", len(parts))
	}
	var cube geo.Cube
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return geo.Cube{}, fmt.Errorf("invalid marker ID %q: %w", p, err)
		}
		cube[i] = uint8(v)
	}
	return cube, nil
}
