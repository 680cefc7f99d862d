package web

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/status"
)

var ServerPackage *pack.Package

// NewRouter serves pkg read-only.
func NewRouter(pkg *pack.Package) *mux.Router {
	ServerPackage = pkg

	r := mux.NewRouter()
	r.HandleFunc("/json/package", HandlerJsonPackage)
	r.HandleFunc("/json/item", HandlerJsonItem)
	r.HandleFunc("/json/item/{path:.*}", HandlerJsonItem)
	r.HandleFunc("/dump/{path:.*}", HandlerDumpFile)
	r.HandleFunc("/image/{path:.*}", HandlerImage)
	r.HandleFunc("/validate", HandlerValidate)
	r.HandleFunc("/validate/{path:.*}", HandlerValidate)
	r.HandleFunc("/ws/status", status.ServeWs)
	return r
}

func StartServer(addr string, pkg *pack.Package) error {
	var h http.Handler = NewRouter(pkg)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	h = handlers.LoggingHandler(os.Stdout, h)

	log.Infof("[web] Starting server %v", addr)

	return http.ListenAndServe(addr, h)
}
