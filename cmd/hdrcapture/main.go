package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/hdrcapture/hdr"
	"github.jpl.nasa.gov/bdube/hdrcapture/zivid"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "hdrcapture.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func loadconf() Config {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func root() {
	str := `hdrcapture connects to the first available Zivid camera, captures an HDR
frame from a three frame exposure bracket, and saves it to HDR.zdf.

Usage:
	hdrcapture [command]

Commands:
	run (default)
	serve
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `hdrcapture is amenable to configuration via its .yaml file, hdrcapture.yml
in the working directory.  For a primer on YAML, see
https://yaml.org/start.html

mkconf writes the default configuration to hdrcapture.yml; edit it from there.

Baseline holds the settings shared by every frame.  Frames holds the iris,
exposure time (microseconds), and gain of each frame, in capture order.

serve exposes the camera over HTTP at Server.Addr:
	GET  /info, /settings, /bracket, /temperature, /lock, /endpoints
	POST /settings, /bracket, /lock
	POST /capture, /hdr  ?fmt=zdf|png|jpg&width=N

Setting Server.RecordRoot saves every .zdf served into dated folders below it.`
	fmt.Println(str)
}

func mkconf() {
	c := loadconf()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconf()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("hdrcapture version %v, zivid wrapper version %v\n", Version, zivid.WRAPVER)
}

func newSpinner() (*yacspin.Spinner, error) {
	return yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[11],
		Suffix:          " capturing",
		StopMessage:     "done",
		StopFailMessage: "failed",
		Writer:          os.Stderr,
	})
}

// capture performs the capture procedure with an application scoped to the call
func capture(ctx context.Context, c Config) error {
	app := NewApplication(c)
	defer app.Close()

	r := hdr.NewRunner(connector{app, c.Camera.Serial})
	r.Log = log.New(os.Stdout, "", 0)
	r.Output = c.Output
	r.Baseline = c.Baseline
	r.Frames = c.FrameSettings()
	if c.Spinner {
		s, err := newSpinner()
		if err != nil {
			return err
		}
		r.Spinner = s
	}
	return r.Run(ctx)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(hdr.ExitCode(err))
}

func main() {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = strings.ToLower(os.Args[1])
	}
	setupconfig()
	ctx := context.Background()
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "version":
		pversion()
	case "run":
		err := capture(ctx, loadconf())
		if err != nil {
			fail(err)
		}
	case "serve":
		c := loadconf()
		app := NewApplication(c)
		log.Println("now listening for requests at ", c.Server.Addr)
		err := serve(ctx, c, app)
		app.Close()
		if err != nil {
			fail(err)
		}
	default:
		root()
		fail(fmt.Errorf("unknown command %q", cmd))
	}
}
