// Package service implements the daemon's remote operations on top of the
// store and the draw-result provider.
//
// Service satisfies ipc.Handler: Dispatch is the single switch over the
// closed operation set. Every mutation ends by recomputing the broadcast
// snapshot through state.Holder, which publishes it to subscribed clients.
package service
