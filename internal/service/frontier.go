package service

// frontierEntry is a URL waiting to be fetched and its BFS depth from the
// start URL.
type frontierEntry struct {
	url   string
	depth int
}

// frontier is the breadth-first crawl state of a single crawl. It is owned
// by one goroutine and is not safe for concurrent use.
type frontier struct {
	queue   []frontierEntry
	seen    map[string]bool
	visited int
}

func newFrontier(start string) *frontier {
	f := &frontier{seen: make(map[string]bool)}
	f.push(start, 0)
	return f
}

// push enqueues url unless it was already enqueued or visited.
func (f *frontier) push(url string, depth int) bool {
	if f.seen[url] {
		return false
	}
	f.seen[url] = true
	f.queue = append(f.queue, frontierEntry{url: url, depth: depth})
	return true
}

// next pops the oldest entry and counts it as visited.
func (f *frontier) next() (frontierEntry, bool) {
	if len(f.queue) == 0 {
		return frontierEntry{}, false
	}
	e := f.queue[0]
	f.queue = f.queue[1:]
	f.visited++
	return e, true
}

func (f *frontier) pending() int {
	return len(f.queue)
}
