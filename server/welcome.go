package server

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Version is reported by the welcome page. It is set at link time.
var Version = "dev"

func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	fmt.Fprintf(w, "bagindexer (%s)\n", Version)
}
