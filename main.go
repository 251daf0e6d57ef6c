package main

import (
	"BaroServer/bmp280"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/mux"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

type ProgramArgs struct {
	// Server Options
	Host string `short:"H" long:"host" default:"127.0.0.1" description:"IP to listen on"`
	Port uint16 `short:"P" long:"port" default:"27280" description:"Port to listen on"`

	// Sensor Options
	Interval  uint16 `short:"I" long:"interval" default:"2" description:"Interval between readings in seconds"`
	I2CDevice string `short:"D" long:"i2cdev" description:"The used I2C device (default: auto)"`
}

var (
	args   ProgramArgs
	logger = golog.NewDevelopmentLogger("baroserver")

	// stateMu guards the scan mask and the latest periodic reading.
	stateMu        sync.Mutex
	scanMask       = bmp280.AllChannels
	currentReading SensorReading
)

var (
	tempGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "baroserver_temperature_celsius",
		Help: "Latest compensated temperature.",
	})
	pressureGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "baroserver_pressure_pascal",
		Help: "Latest compensated pressure.",
	})
	captureCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baroserver_captures_total",
		Help: "Number of trigger firings that produced a packed sample.",
	})
	captureFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baroserver_capture_failures_total",
		Help: "Number of trigger firings aborted by an I/O failure.",
	})
)

const MIN_TIMEOUT_SECONDS = 2

// updateReadings polls the two processed channels on a fixed schedule and
// keeps the latest formatted values for the / endpoint and the metrics
// gauges. A failed poll keeps the previous reading.
func updateReadings(dev *bmp280.Dev, interval time.Duration) {
	tempCh, _ := bmp280.ChannelByScanPos(bmp280.PosProcessedTemp)
	pressCh, _ := bmp280.ChannelByScanPos(bmp280.PosProcessedPress)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		temp, err := dev.ReadChannel(tempCh)
		if err != nil {
			logger.Errorw("temperature poll failed", "error", err)
			<-t.C
			continue
		}
		press, err := dev.ReadChannel(pressCh)
		if err != nil {
			logger.Errorw("pressure poll failed", "error", err)
			<-t.C
			continue
		}

		reading := NewSensorReading(time.Now())
		reading.Temperature = temp.Float64()
		reading.Pressure = press.Float64()

		stateMu.Lock()
		currentReading = reading
		stateMu.Unlock()
		tempGauge.Set(reading.Temperature)
		pressureGauge.Set(reading.Pressure)

		<-t.C
	}
}

func getOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		logger.Fatal(err)
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP
}

func setupI2CBus(i2cdev string) i2c.BusCloser {
	if _, err := host.Init(); err != nil {
		logger.Fatalf("Initialization failed: %v", err)
	}

	bus, err := i2creg.Open(i2cdev)
	if err != nil {
		logger.Fatalf("Couldn't open I2C device: %v", err)
	}

	return bus
}

// setupSensor returns the device. The caller has the responsibility to
// close the bus.
func setupSensor(i2cBus i2c.BusCloser) *bmp280.Dev {
	dev, err := bmp280.NewI2C(i2cBus, 0x76, &bmp280.DefaultOpts)
	if err != nil {
		logger.Fatalf("Couldn't initialize sensor: %v", err)
	}

	return dev
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	jsonStr, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(jsonStr)
}

// parseScanPos extracts and validates the {pos} route variable.
func parseScanPos(r *http.Request) (bmp280.Channel, bool) {
	pos, err := strconv.Atoi(mux.Vars(r)["pos"])
	if err != nil {
		return bmp280.Channel{}, false
	}
	return bmp280.ChannelByScanPos(pos)
}

func setupRoutes(dev *bmp280.Dev) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		stateMu.Lock()
		reading := currentReading
		stateMu.Unlock()
		writeJSON(w, reading)
	})

	r.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		stateMu.Lock()
		mask := scanMask
		stateMu.Unlock()
		infos := make([]ChannelInfo, 0, len(bmp280.Channels))
		for _, ch := range bmp280.Channels {
			infos = append(infos, NewChannelInfo(ch, mask.Enabled(ch.ScanPos)))
		}
		writeJSON(w, infos)
	})

	r.HandleFunc("/channels/{pos}", func(w http.ResponseWriter, r *http.Request) {
		ch, ok := parseScanPos(r)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		reading, err := dev.ReadChannel(ch)
		if err != nil {
			logger.Errorw("channel read failed", "channel", ch.String(), "error", err)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, ChannelValue{Value: reading.Value, Scale: reading.Scale})
	}).Methods(http.MethodGet)

	r.HandleFunc("/channels/{pos}/enable", func(w http.ResponseWriter, r *http.Request) {
		ch, ok := parseScanPos(r)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		stateMu.Lock()
		scanMask.Enable(ch.ScanPos)
		stateMu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPut)

	r.HandleFunc("/channels/{pos}/disable", func(w http.ResponseWriter, r *http.Request) {
		ch, ok := parseScanPos(r)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		stateMu.Lock()
		scanMask.Disable(ch.ScanPos)
		stateMu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPut)

	// One trigger firing: capture every enabled channel into one packed
	// sample and hand it to the caller as an opaque blob.
	r.HandleFunc("/capture", func(w http.ResponseWriter, r *http.Request) {
		stateMu.Lock()
		mask := scanMask
		stateMu.Unlock()
		sample, err := dev.AssembleSample(mask)
		if err != nil {
			captureFailures.Inc()
			logger.Errorw("capture failed", "error", err)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		captureCount.Inc()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(sample)
	}).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func main() {
	args = ProgramArgs{}
	argParser := flags.NewParser(&args, flags.Default)

	_, err := argParser.Parse()
	if err != nil {
		logger.Fatal("arg parse fail")
	}

	prometheus.MustRegister(tempGauge)
	prometheus.MustRegister(pressureGauge)
	prometheus.MustRegister(captureCount)
	prometheus.MustRegister(captureFailures)

	// Boring i2c setup (error handling happens in these functions)
	bus := setupI2CBus(args.I2CDevice)
	defer bus.Close()

	dev := setupSensor(bus)
	defer dev.Halt()

	logger.Info("Waking up in a second…")

	// give the sensor time to settle into normal mode
	time.Sleep(1 * time.Second)

	// Start background measurements
	intervalDuration := time.Duration(args.Interval) * time.Second
	go updateReadings(dev, intervalDuration)

	r := setupRoutes(dev)

	timeoutLen := max(MIN_TIMEOUT_SECONDS, int(args.Interval))

	addr := fmt.Sprintf("%s:%d", args.Host, args.Port)
	srv := &http.Server{
		Addr:         addr,
		ReadTimeout:  time.Duration(timeoutLen) * time.Second,
		WriteTimeout: time.Duration(timeoutLen) * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      r,
	}

	go func() {
		if args.Host == "0.0.0.0" {
			localIP := getOutboundIP() // resolve local IP for easier debugging
			logger.Infof("Listening on %s:%d…", localIP.String(), args.Port)
		} else {
			logger.Infof("Listening on %s…", addr)
		}

		err := srv.ListenAndServe()
		logger.Infof("Shutdown (%v)", err)
	}()

	sigChan := make(chan os.Signal, 1)
	// We'll accept graceful shutdowns when quit via SIGINT (Ctrl+C)
	// SIGKILL, SIGQUIT or SIGTERM (Ctrl+/) will not be caught.
	signal.Notify(sigChan, os.Interrupt)

	<-sigChan

	// Give the server a timeout period of 4 seconds
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	// Doesn't block if no connections, but will otherwise wait until the timeout deadline.
	_ = srv.Shutdown(ctx)
	os.Exit(0)
}
