// Package sdk is an asynchronous Go client for a PredictionIO-style event
// server and prediction engine. Every operation is submitted to a bounded
// transport and returns immediately with a handle; callers wait on the handle
// when they need the result.
//
// # Basic Usage
//
// Record an event and wait for its id:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/birbparty/pio-go/sdk"
//	)
//
//	func main() {
//	    client, err := sdk.NewEventClient(sdk.DefaultConfig().
//	        WithAccessKey("my-access-key"))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer client.Close()
//
//	    ctx := context.Background()
//
//	    id, err := client.CreateEvent(ctx, &sdk.Event{
//	        Event:      "$set",
//	        EntityType: "user",
//	        EntityID:   "u1",
//	        Properties: map[string]interface{}{"plan": "pro"},
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Printf("created %s", id)
//	}
//
// # Asynchronous Operations
//
// Each synchronous method has an Async variant returning a *Result. The
// returned error is non-nil only for usage errors, which are detected before
// anything is sent:
//
//	res, err := client.CreateEventAsync(ctx, event)
//	if err != nil {
//	    return err // invalid event, closed client, full queue
//	}
//	// ... do other work ...
//	id, err := res.Wait(ctx)
//
// Results can be polled with IsDone, awaited with Get, GetTimeout or Wait,
// and cancelled with Cancel. Cancelling aborts the underlying HTTP exchange.
//
// # Concurrency
//
// Config.MaxConcurrentConnections bounds how many requests are in flight.
// Requests beyond that wait in a FIFO queue, bounded by Config.QueueDepth
// (zero means unbounded). With the default of one connection, requests are
// sent strictly one after another in submission order.
//
// # Batches
//
// CreateEvents sends a list of events in a single batch request and reports
// one outcome per event, in input order. SubmitEach submits one request per
// event instead and lets them share the transport's concurrency:
//
//	res, err := client.CreateEvents(ctx, events)
//	if err != nil {
//	    var batchErr *sdk.BatchError
//	    if errors.As(err, &batchErr) {
//	        log.Printf("event %d failed: %v", batchErr.Index, batchErr.Err)
//	    }
//	}
//
// # Queries
//
//	engine, _ := sdk.NewEngineClient(sdk.DefaultEngineConfig())
//	result, err := engine.SendQuery(ctx, map[string]interface{}{"user": "u1", "num": 4})
//	scores, err := result.ItemScores()
//
// # Error Handling
//
// All errors are *sdk.Error values categorized as transport, protocol,
// decode or usage errors. Protocol errors carry the HTTP status and the
// verbatim response body:
//
//	if sdk.IsProtocol(err) {
//	    log.Printf("status %d: %s", sdk.StatusCode(err), sdk.ResponseBody(err))
//	}
//
// # Observability
//
// Configure an Observer for request lifecycle callbacks (PrometheusObserver,
// LogObserver and MetricsCollector are provided), a logrus logger for
// structured request logs, and an OpenTelemetry TracerProvider for one
// client span per request.
package sdk

// Version is the SDK version reported in the User-Agent header.
const Version = "0.1.0"
