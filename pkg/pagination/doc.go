// Package pagination drives the dispatcher across cursor-linked pages
// and flattens them into a single pull-based item stream.
//
// The upstream paginates with opaque continuation cursors: each page
// carries its items plus a next_cursor field, and a blank or absent
// cursor marks the final page. FetchItems hides the page boundaries:
//
//	fetcher := pagination.NewFetcher[Order](dispatcher)
//	stream := fetcher.FetchItems(ctx, "https://api.example.com/v1/orders")
//	for stream.Next() {
//	    handle(stream.Item())
//	}
//	if err := stream.Err(); err != nil {
//	    return err
//	}
//
// The stream overlaps network latency with consumption: as soon as a
// page with a cursor arrives, the fetch for the following page starts
// in the background while the current page's items are being yielded.
// The pipeline is exactly one page deep.
//
// A stream is single-pass and not restartable; call FetchItems again
// for a fresh traversal. Cancellation of the supplied context stops
// item production and any in-flight page fetch promptly.
package pagination
