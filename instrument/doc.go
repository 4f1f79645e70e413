// Package instrument records timed scopes as Chrome trace events.
//
// A Recorder is an explicit object passed to the code it instruments; a nil
// *Recorder records nothing. Finished events are buffered and handed to a
// Writer whenever the buffer exceeds its target size, and on Flush/Close.
//
//	rec := instrument.NewRecorder(instrument.NewFileWriter("trace.json"),
//	    instrument.WithProcessID(rank))
//	defer rec.Close(ctx)
//
//	span := rec.Start("Iteration")
//	// ...
//	span.End()
//
// The resulting file loads in chrome://tracing and Perfetto.
package instrument
