package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Riku4230/agenthackathon-4/internal/audio"
	"github.com/Riku4230/agenthackathon-4/internal/protocol"
)

const sampleRate = 16000

func main() {
	gateway := flag.String("gateway", "ws://localhost:3001/ws", "gateway WebSocket URL")
	concurrency := flag.Int("concurrency", 10, "number of concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	audioDir := flag.String("audio-dir", "/samples", "directory with sample .wav files")
	chat := flag.String("chat", "We need a signup form with email and password, and a button to submit it.", "chat message sent after the audio")
	binaryFrames := flag.Bool("binary", true, "send audio as tagged binary frames instead of JSON")
	timeout := flag.Duration("timeout", 60*time.Second, "per-session wait for a finished artifact")
	flag.Parse()

	files, err := findAudioFiles(*audioDir)
	if err != nil || len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no audio files in %s, generating synthetic audio\n", *audioDir)
		files = nil
	}

	fmt.Printf("Load test: %d concurrent sessions for %s\n", *concurrency, *duration)
	fmt.Printf("Gateway: %s | Binary frames: %v\n\n", *gateway, *binaryFrames)

	var mu sync.Mutex
	var results []sessionResult
	var wg sync.WaitGroup

	deadline := time.Now().Add(*duration)

	for i := range *concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for n := 0; time.Now().Before(deadline); n++ {
				r := runSession(sessionPlan{
					gateway:   *gateway,
					meetingID: fmt.Sprintf("loadtest-%d-%d", i, n),
					audio:     getAudioData(files),
					chat:      *chat,
					binary:    *binaryFrames,
					timeout:   *timeout,
				})
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	printSummary(results)
}

type sessionPlan struct {
	gateway   string
	meetingID string
	audio     []byte
	chat      string
	binary    bool
	timeout   time.Duration
}

type sessionResult struct {
	success        bool
	noRequirements bool
	connectMs      float64
	firstChunkMs   float64
	completeMs     float64
	requirements   int
	err            string
}

type envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
	at    time.Time
}

func runSession(p sessionPlan) sessionResult {
	conn, _, err := websocket.DefaultDialer.Dial(p.gateway, nil)
	if err != nil {
		return sessionResult{err: fmt.Sprintf("dial: %v", err)}
	}
	defer conn.Close()

	events := make(chan envelope, 256)
	go readEvents(conn, events)

	start := time.Now()
	if err = writeEvent(conn, protocol.EventSessionStart, map[string]any{"meetingId": p.meetingID, "sampleRate": sampleRate}); err != nil {
		return sessionResult{err: fmt.Sprintf("send start: %v", err)}
	}
	connected, err := waitFor(events, p.timeout, protocol.EventSessionConnected)
	if err != nil {
		return sessionResult{err: err.Error()}
	}
	res := sessionResult{connectMs: ms(connected.at.Sub(start))}

	if err = streamAudio(conn, p.audio, p.binary); err != nil {
		res.err = fmt.Sprintf("send audio: %v", err)
		return res
	}
	if err = writeEvent(conn, protocol.EventChatMessage, map[string]any{"text": p.chat}); err != nil {
		res.err = fmt.Sprintf("send chat: %v", err)
		return res
	}

	// give the model a moment to extract requirements from the chat turn
	drainUntil(events, time.Now().Add(3*time.Second), &res)

	genStart := time.Now()
	if err = writeEvent(conn, protocol.EventGenerateRequest, map[string]any{}); err != nil {
		res.err = fmt.Sprintf("send generate: %v", err)
		return res
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				res.err = "connection closed"
				return res
			}
			switch ev.Event {
			case protocol.EventRequirementDetected:
				res.requirements++
			case protocol.EventArtifactStream:
				if res.firstChunkMs == 0 {
					res.firstChunkMs = ms(ev.at.Sub(genStart))
				}
			case protocol.EventArtifactUpdate:
				res.completeMs = ms(ev.at.Sub(genStart))
				res.success = true
				writeEvent(conn, protocol.EventSessionEnd, map[string]any{})
				return res
			case protocol.EventError:
				if ev.Data["code"] == protocol.CodeNoRequirements {
					res.noRequirements = true
					return res
				}
				res.err = fmt.Sprintf("%v: %v", ev.Data["code"], ev.Data["message"])
				return res
			}
		case <-timer.C:
			res.err = "timeout waiting for artifact"
			return res
		}
	}
}

func readEvents(conn *websocket.Conn, out chan<- envelope) {
	defer close(out)
	for {
		var ev envelope
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		ev.at = time.Now()
		out <- ev
	}
}

func writeEvent(conn *websocket.Conn, event string, data any) error {
	return conn.WriteJSON(map[string]any{"event": event, "data": data})
}

func waitFor(events <-chan envelope, timeout time.Duration, event string) (envelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return envelope{}, fmt.Errorf("closed waiting for %s", event)
			}
			if ev.Event == event {
				return ev, nil
			}
		case <-timer.C:
			return envelope{}, fmt.Errorf("timeout waiting for %s", event)
		}
	}
}

func drainUntil(events <-chan envelope, until time.Time, res *sessionResult) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Event == protocol.EventRequirementDetected {
				res.requirements++
			}
		case <-time.After(time.Until(until)):
			return
		}
	}
}

func streamAudio(conn *websocket.Conn, pcm []byte, binaryFrames bool) error {
	chunkSize := 640 // 320 samples * 2 bytes = 20ms at 16kHz
	tag := []byte(protocol.EventAudioStream + "\x00")

	for i := 0; i < len(pcm); i += chunkSize {
		end := min(i+chunkSize, len(pcm))
		chunk := pcm[i:end]

		var err error
		if binaryFrames {
			err = conn.WriteMessage(websocket.BinaryMessage, append(append([]byte(nil), tag...), chunk...))
		} else {
			err = writeEvent(conn, protocol.EventAudioStream, map[string]any{"data": chunk, "timestamp": time.Now().UnixMilli()})
		}
		if err != nil {
			return err
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

func getAudioData(files []string) []byte {
	if len(files) > 0 {
		if pcm, err := loadWAV(files[rand.Intn(len(files))]); err == nil {
			return pcm
		}
	}
	return generateSyntheticAudio(3 * time.Second)
}

func loadWAV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	samples, cfg, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	return audio.ResamplePCM16(audio.SamplesToBytes(samples), cfg.SampleRate, sampleRate), nil
}

func generateSyntheticAudio(dur time.Duration) []byte {
	numSamples := int(dur.Seconds()) * sampleRate
	buf := make([]byte, numSamples*2)

	for i := range numSamples {
		t := float64(i) / float64(sampleRate)
		// 440Hz sine wave with some noise to clear the activity threshold
		sample := math.Sin(2*math.Pi*440*t)*0.3 + (rand.Float64()-0.5)*0.05
		val := int16(sample * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(val))
	}
	return buf
}

func findAudioFiles(dir string) ([]string, error) {
	var files []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".wav" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func printSummary(results []sessionResult) {
	var succeeded, failed, empty, reqs int
	var connectAll, firstAll, completeAll []float64

	for _, r := range results {
		reqs += r.requirements
		switch {
		case r.noRequirements:
			empty++
			connectAll = append(connectAll, r.connectMs)
			continue
		case !r.success:
			failed++
			continue
		}
		succeeded++
		connectAll = append(connectAll, r.connectMs)
		firstAll = append(firstAll, r.firstChunkMs)
		completeAll = append(completeAll, r.completeMs)
	}

	fmt.Printf("\n=== Load Test Results ===\n")
	fmt.Printf("Artifacts completed:    %d\n", succeeded)
	fmt.Printf("No requirements found:  %d\n", empty)
	fmt.Printf("Sessions failed:        %d\n", failed)
	fmt.Printf("Requirements detected:  %d\n", reqs)

	if len(connectAll) == 0 {
		fmt.Println("No successful sessions to report metrics")
		return
	}

	fmt.Printf("\n%-9s %8s %8s %8s\n", "Stage", "p50", "p95", "p99")
	printRow("Connect", connectAll)
	if len(completeAll) > 0 {
		printRow("1stChunk", firstAll)
		printRow("Complete", completeAll)
	}
}

func printRow(label string, data []float64) {
	fmt.Printf("%-9s %8.0fms %8.0fms %8.0fms\n", label, percentile(data, 50), percentile(data, 95), percentile(data, 99))
}

func percentile(data []float64, pct float64) float64 {
	sort.Float64s(data)
	idx := int(math.Ceil(pct/100*float64(len(data)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(data) {
		idx = len(data) - 1
	}
	return data[idx]
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
