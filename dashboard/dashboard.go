package dashboard

import (
	"html/template"
	"net/http"

	"github.com/j-r-jones/optsearch/farm"
)

var statustmplstr = `
<html>
<head><title>optsearchd status</title></head>
<body>
<h1>optsearchd</h1>
<p>Queue depth: {{.Status.QueueLen}}</p>
<table border="1">
<tr><th>Worker</th><th>State</th></tr>
{{range .Status.Workers}}
<tr><td>{{.ID}}</td><td>{{.State}}</td></tr>
{{end}}
</table>

<h2>Recent work items</h2>
<table border="1">
<tr><th>UID</th><th>Command</th><th>Fitness</th><th>Worker</th><th>Elapsed</th><th>Finished</th></tr>
{{range .Recent}}
<tr>
  <td>{{.UID}}</td>
  <td>{{.Command}}</td>
  <td>{{.Fitness}}</td>
  <td>{{.Worker}}</td>
  <td>{{.Elapsed}}</td>
  <td>{{.Finished}}</td>
</tr>
{{end}}
</table>
</body>
</html>
`

var statustmpl = template.Must(template.New("status").Parse(statustmplstr))

const recentWindow = 100

// Server serves the diagnostics HTTP page for a running master.
type Server struct {
	master  *farm.Master
	history *History
}

// NewServer builds a dashboard Server reading live status from master and
// recent work-item history from hist.
func NewServer(master *farm.Master, hist *History) *Server {
	return &Server{master: master, history: hist}
}

// Handler returns an http.Handler serving the single status page at "/".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.status)
	return mux
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	recent, err := s.history.Recent(recentWindow)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		Status farm.Status
		Recent []Entry
	}{
		Status: s.master.Status(),
		Recent: recent,
	}

	w.Header().Add("Access-Control-Allow-Origin", "*")
	if err := statustmpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ListenAndServe starts the dashboard HTTP server on addr. It blocks until
// the server stops; callers typically run it in its own goroutine and let
// a signal-driven shutdown tear the whole process down together.
func ListenAndServe(addr string, master *farm.Master, hist *History) error {
	srv := NewServer(master, hist)
	return http.ListenAndServe(addr, srv.Handler())
}
