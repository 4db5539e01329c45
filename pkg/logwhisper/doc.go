// Package logwhisper provides an embeddable log anomaly detector. Lines are
// reduced to templates, counted per service, level and template in time
// buckets, and compared against their own history.
//
// Quick start:
//
//	w, err := logwhisper.New(logwhisper.WithRecentWindow(time.Minute))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	accepted, rejected, _ := w.IngestReader(os.Stdin)
//	for _, a := range w.Detect(time.Time{}) {
//	    fmt.Println(a.Band, a.Reason, a.Service, a.Template)
//	}
//
// A Logwhisper is safe for concurrent use.
package logwhisper
