// Package provider fetches published draw results from the mxnzp lottery
// API.
//
// Every HTTP call is admitted through the provider's ratelimit.Executor, so
// the daemon never exceeds the provider's QPS ceiling no matter how many
// operations run concurrently. The client keeps running call statistics that
// feed the api_status block of the broadcast state.
package provider
