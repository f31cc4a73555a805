package proto

import "github.com/eapache/queue"

// RequestQueue is the FIFO of PendingRequests waiting for the one
// currently executing to finish (spec.md §4.4: "all other run_script
// calls are serialized behind it in FIFO order").
type RequestQueue struct {
	q *queue.Queue
}

// NewRequestQueue returns an empty queue.
func NewRequestQueue() *RequestQueue {
	return &RequestQueue{q: queue.New()}
}

// Push appends req to the back of the queue.
func (rq *RequestQueue) Push(req *PendingRequest) {
	rq.q.Add(req)
}

// Pop removes and returns the request at the front of the queue, or nil
// if the queue is empty.
func (rq *RequestQueue) Pop() *PendingRequest {
	if rq.q.Length() == 0 {
		return nil
	}
	req := rq.q.Remove()
	return req.(*PendingRequest)
}

// Len reports the number of requests waiting.
func (rq *RequestQueue) Len() int {
	return rq.q.Length()
}

// Remove drops the request with the given id from the queue, wherever it
// sits, and returns it. Used when a caller cancels a request that hasn't
// started executing yet.
func (rq *RequestQueue) Remove(id string) *PendingRequest {
	n := rq.q.Length()
	var found *PendingRequest
	for i := 0; i < n; i++ {
		req := rq.q.Remove().(*PendingRequest)
		if req.ID == id && found == nil {
			found = req
			continue
		}
		rq.q.Add(req)
	}
	return found
}
