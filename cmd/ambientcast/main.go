package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ambientcast.app/ambientcast/castprotocol"
	"ambientcast.app/ambientcast/engine"
	"ambientcast.app/ambientcast/engine/portaudio"
	"ambientcast.app/ambientcast/internal/config"
	"ambientcast.app/ambientcast/internal/interactive"
	"ambientcast.app/ambientcast/internal/looper"
	"ambientcast.app/ambientcast/internal/screeninterfaces"
	"ambientcast.app/ambientcast/internal/wssession"
	"ambientcast.app/ambientcast/playback"
)

const (
	connectTimeout = 30 * time.Second
	envAccessToken = "AMBIENTCAST_ACCESS_TOKEN"
)

var (
	//go:embed version.txt
	version    string
	errNoflag  = errors.New("no flag used")
	srcArg     = flag.String("s", "", "Comma separated local paths or HTTP URLs of the sound's MP3 sources.")
	idArg      = flag.String("id", "", "Sound id. Defaults to the first source's file name.")
	loopPtr    = flag.Bool("loop", false, "Loop the sound.")
	volPtr     = flag.Float64("vol", -1, "Initial volume between 0 and 1. Defaults to the configured volume.")
	targetPtr  = flag.String("t", "", "Cast to a specific receiver (host or host:port).")
	wsPtr      = flag.String("ws", "", "Cast to a websocket receiver URL (ws:// or wss://).")
	debugPtr   = flag.String("debug", "", "Write debug logs to this file.")
	envPtr     = flag.String("env", ".env", "Dotenv file with AMBIENTCAST_* overrides.")
	plainPtr   = flag.Bool("plain", false, "Print status lines instead of the interactive screen. Exit with Ctrl+C.")
	versionPtr = flag.Bool("version", false, "Print version.")

	ErrNoCombi = errors.New("can't combine -t with -ws")
)

type flagResults struct {
	sources []string
	id      string
	exit    bool
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errNoflag) {
			flag.Usage()
			os.Exit(0)
		}

		fmt.Fprintf(os.Stderr, "Encountered error(s): %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	exitCTX, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flag.Parse()

	flagRes, err := processflags()
	if err != nil {
		return err
	}

	if flagRes.exit {
		return nil
	}

	if err := config.LoadEnv(*envPtr); err != nil {
		return err
	}

	conf, err := config.GetAppConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(*debugPtr, conf.ZerologLevel())
	if err != nil {
		return err
	}
	defer closeLog()

	sched := looper.New()
	defer sched.Close()

	// Events may fire before the screen exists.
	var onEvent atomic.Pointer[playback.EventHandler]
	opts := []playback.Option{
		playback.WithLogger(logger),
		playback.WithFadeDurations(conf.FadeInDuration, conf.FadeOutDuration),
		playback.WithEventHandler(func(ev playback.Event) {
			if h := onEvent.Load(); h != nil {
				(*h)(ev)
			}
		}),
	}

	session, closeSession, err := openSession(exitCTX, conf, logger)
	if err != nil {
		return err
	}
	defer closeSession()

	var (
		factory *playback.Factory
		players playerSet
	)
	if session == nil {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("audio output: %w", err)
		}
		defer portaudio.Terminate()

		// Players outlive the exit signal; Stop releases them after the
		// fade out.
		newPlayer := players.track(engine.NewFactory(context.Background(), func() (engine.Output, error) {
			return portaudio.New(engine.DefaultFramesPerBuffer), nil
		}, engine.WithLogger(logger)))

		factory, err = playback.NewLocalFactory(sched, newPlayer, opts...)
	} else {
		factory, err = playback.NewCastFactory(sched, session, conf.SoundNamespace, opts...)
		if err == nil {
			listener := castprotocol.NewListener(session, conf.EventNamespace, nil)
			listener.Logger = logger
			defer listener.Stop()

			relay := playback.NewRemoteRelay(session, conf.EventNamespace, nil, sched, accessToken, opts...)
			relay.Attach(listener)
			relay.SyncReceiverSettings(conf.ReceiverSettings())
		}
	}
	if err != nil {
		return err
	}

	volume := conf.Volume
	if *volPtr >= 0 {
		volume = playback.ClampVolume(*volPtr)
	}

	sound := playback.NewSound(flagRes.id, flagRes.sources, *loopPtr)
	strategy := factory.New(sound)

	if *plainPtr {
		scr := &plainScreen{ctxCancel: cancel}
		h := screeninterfaces.Events(scr)
		onEvent.Store(&h)

		strategy.SetVolume(volume)
		strategy.Play()
		<-exitCTX.Done()
		screeninterfaces.Close(scr)
	} else {
		var s *interactive.SoundScreen
		s, err = interactive.InitSoundScreen(strategy, flagRes.id, factory.Backend().String(), volume, cancel)
		if err != nil {
			return err
		}
		h := playback.EventHandler(s.HandleEvent)
		onEvent.Store(&h)

		strategy.SetVolume(volume)
		strategy.Play()

		screenErr := make(chan error, 1)
		go s.InterInit(screenErr)

		select {
		case err = <-screenErr:
		case <-exitCTX.Done():
			s.Fini()
		}
	}

	strategy.Stop()
	flushed := make(chan struct{})
	sched.Post(func() { close(flushed) })
	select {
	case <-flushed:
	case <-time.After(connectTimeout):
	}

	// Outputs must be closed before portaudio is terminated.
	if !players.wait(conf.FadeOutDuration + time.Second) {
		logger.Warn().Str("Method", "run").Msg("audio players did not exit in time")
	}

	return err
}

type plainScreen struct {
	ctxCancel context.CancelFunc
}

func (s *plainScreen) EmitMsg(msg string) {
	fmt.Println(msg)
}

func (s *plainScreen) Fini() {
	fmt.Println("exiting..")
	s.ctxCancel()
}

// openSession connects to the requested receiver. It returns a nil
// session when the sound plays locally.
func openSession(ctx context.Context, conf *config.Config, logger zerolog.Logger) (castprotocol.Session, func(), error) {
	if *wsPtr != "" {
		dialCTX, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		s, err := wssession.Dial(dialCTX, *wsPtr, nil, wssession.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}

	target := *targetPtr
	if target == "" {
		target = conf.CastDevice
	}
	if target == "" {
		return nil, func() {}, nil
	}

	client, err := castprotocol.NewCastClient(target, conf.ReceiverAppID)
	if err != nil {
		return nil, nil, err
	}
	client.Logger = logger

	connectCTX, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Connect(connectCTX); err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close(true) }, nil
}

func accessToken() (string, error) {
	token := os.Getenv(envAccessToken)
	if token == "" {
		return "", fmt.Errorf("%s is not set", envAccessToken)
	}
	return token, nil
}

// newLogger logs to path, or nowhere when path is empty so the terminal
// screen stays intact.
func newLogger(path string, level zerolog.Level) (zerolog.Logger, func(), error) {
	zerolog.SetGlobalLevel(level)

	if path == "" {
		return zerolog.Nop(), func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("debug log: %w", err)
	}

	logger := zerolog.New(f).With().Timestamp().Logger()
	if level > zerolog.DebugLevel {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return logger, func() { f.Close() }, nil
}

func processflags() (*flagResults, error) {
	res := &flagResults{}

	if checkVerflag() {
		res.exit = true
		return res, nil
	}

	if *srcArg == "" {
		return nil, fmt.Errorf("checkflags error: %w", errNoflag)
	}

	if *targetPtr != "" && *wsPtr != "" {
		return nil, fmt.Errorf("checkflags error: %w", ErrNoCombi)
	}

	sources, err := checkSflag(*srcArg)
	if err != nil {
		return nil, fmt.Errorf("checkflags error: %w", err)
	}
	res.sources = sources

	res.id = *idArg
	if res.id == "" {
		res.id = soundID(sources[0])
	}

	if *volPtr > 1 {
		return nil, fmt.Errorf("checkflags error: volume %v is above 1", *volPtr)
	}

	return res, nil
}

// checkSflag splits the source list and makes local paths absolute.
func checkSflag(arg string) ([]string, error) {
	var sources []string
	for _, src := range strings.Split(arg, ",") {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}

		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			sources = append(sources, src)
			continue
		}

		if _, err := os.Stat(src); err != nil {
			return nil, fmt.Errorf("checkSflag error: %w", err)
		}

		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, fmt.Errorf("checkSflag error: %w", err)
		}
		sources = append(sources, abs)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("checkSflag error: %w", engine.ErrNoSources)
	}
	return sources, nil
}

func soundID(src string) string {
	base := filepath.Base(src)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func checkVerflag() bool {
	if *versionPtr && len(os.Args) > 1 && os.Args[1] == "-version" {
		fmt.Printf("Ambientcast Version: %s\n", strings.TrimSpace(version))
		return true
	}
	return false
}
