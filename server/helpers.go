package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Daskott/walkwithme/utils"
	"github.com/go-co-op/gocron"
	"github.com/go-playground/validator"
)

// ---------------------------------------------------------------------------------//
// Handler Helper functions
// --------------------------------------------------------------------------------//

func writeResponse(rw http.ResponseWriter, payLoad ResponsePayload, statusCode int) {
	if statusCode >= http.StatusInternalServerError {
		logg.Error(payLoad.Errors)
	} else if statusCode >= http.StatusBadRequest {
		logg.Info(payLoad.Errors)
	}

	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(payLoad)
}

func writeError(rw http.ResponseWriter, err error, statusCode int) {
	writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, statusCode)
}

// decodeAndValidate reads a JSON body into data and runs its validate tags.
// It writes the error response itself and reports whether the caller may go on.
func decodeAndValidate(rw http.ResponseWriter, r *http.Request, data interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(data)
	if err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{"invalid json body: " + err.Error()}}, http.StatusBadRequest)
		return false
	}

	errs := validate.Struct(data)
	if errs != nil {
		writeResponse(rw, ResponsePayload{Errors: strings.Split(errs.Error(), "\n")}, http.StatusBadRequest)
		return false
	}

	return true
}

// pageParams reads ?page= and ?page_size=, treating anything unparsable as unset.
func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}

func RegisterValidators(validate *validator.Validate) error {
	return validate.RegisterValidation("not_blank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// ---------------------------------------------------------------------------------//
// Server Helper functions
// --------------------------------------------------------------------------------//

func serve(server *http.Server) {
	logg.Infof("WalkWithMe server is listening on %v", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Fatal(err)
	}
}

func cleanup(s *Server, scheduler *gocron.Scheduler, server *http.Server, backups FileStore, dataDir string) {
	// End the walk first so its summary reaches the db before any backup
	s.Close()
	scheduler.Stop()

	if backups != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := backupSqliteDb(ctx, backups, dataDir); err != nil {
			logg.Errorf("final sqlite backup failed: %v", err)
		}
		cancel()
	}

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutDown); err != nil {
		logg.Fatalf("WalkWithMe server shutdown failed:%+s", err)
	}

	logg.Infof("WalkWithMe server stopped properly")
}

// configDirectory retrieves the directory to store walkwithme data
// Or logs an error message and then calls os.Exit if it's unable to.
func configDirectory(devMode bool) string {
	// Use 'walkwithme' folder in home directory for prod
	configFolderName := "walkwithme"
	rootDir, err := os.UserHomeDir()
	fatalOnError(err)

	// Use 'dev' folder in current directory for dev mode
	if devMode {
		configFolderName = "dev"
		rootDir, err = os.Getwd()
		fatalOnError(err)
	}

	configDir := filepath.Join(rootDir, configFolderName)

	err = utils.CreateDirIfNotExist(configDir)
	fatalOnError(err)

	return configDir
}

func fatalOnError(err error) {
	if err != nil {
		logg.Fatal(err)
	}
}
