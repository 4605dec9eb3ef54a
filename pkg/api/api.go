package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/cosmeon-io/cosmeon/pkg/cluster"
	"github.com/cosmeon-io/cosmeon/pkg/codec"
	"github.com/cosmeon-io/cosmeon/pkg/config"
	"github.com/cosmeon-io/cosmeon/pkg/engine"
	"github.com/cosmeon-io/cosmeon/pkg/storage"
)

type API struct {
	manager  *storage.Manager
	registry *cluster.Registry
	cfg      *config.Config
	logger   *zap.Logger
	server   *http.Server
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func NewAPI(manager *storage.Manager, registry *cluster.Registry, cfg *config.Config) (*API, error) {
	logger, _ := zap.NewProduction()

	api := &API{
		manager:  manager,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}

	router := mux.NewRouter()
	api.setupRoutes(router)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	api.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.APIPort),
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return api, nil
}

func (api *API) setupRoutes(router *mux.Router) {
	// Service info
	router.HandleFunc("/", api.ServiceInfo).Methods("GET")

	// File management
	router.HandleFunc("/upload", api.UploadFile).Methods("POST")
	router.HandleFunc("/files", api.ListFiles).Methods("GET")
	router.HandleFunc("/files", api.DeleteAllFiles).Methods("DELETE")
	router.HandleFunc("/file/{id}/status", api.GetFileStatus).Methods("GET")
	router.HandleFunc("/file/{id}/reconstruct", api.ReconstructFile).Methods("GET")
	router.HandleFunc("/file/{id}/reconstruct-info", api.GetReconstructInfo).Methods("GET")
	router.HandleFunc("/file/{id}", api.DeleteFile).Methods("DELETE")

	// Node health and failure simulation
	router.HandleFunc("/nodes/status", api.GetNodesStatus).Methods("GET")
	router.HandleFunc("/nodes/failures", api.GetFailures).Methods("GET")
	router.HandleFunc("/nodes/failures", api.ClearFailures).Methods("DELETE")
	router.HandleFunc("/nodes/{id}/simulate-failure", api.SimulateFailure).Methods("POST")
	router.HandleFunc("/nodes/{id}/restore", api.RestoreNode).Methods("POST")
}

func (api *API) Start() error {
	api.logger.Info("Starting API server", zap.String("addr", api.server.Addr))
	return api.server.ListenAndServe()
}

func (api *API) Stop(ctx context.Context) error {
	return api.server.Shutdown(ctx)
}

// Service info handler
func (api *API) ServiceInfo(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"service":       "COSMEON Distributed Storage API",
			"version":       "1.0.0",
			"status":        "operational",
			"storage_nodes": len(api.cfg.StorageNodes),
			"algorithms":    []string{engine.AlgorithmReplication, engine.AlgorithmReedSolomon},
			"policies":      []string{engine.PolicyBalanced, engine.PolicyEco},
			"time":          time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// File upload handler
func (api *API) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		api.sendError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.sendError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		api.sendError(w, "Failed to read file", http.StatusBadRequest)
		return
	}

	algorithm := r.FormValue("algorithm")
	policy := r.FormValue("policy")
	if policy == "" {
		policy = api.cfg.DefaultPolicy
	}

	result, err := api.manager.Upload(r.Context(), header.Filename, data, algorithm, policy)
	if err != nil {
		if errors.Is(err, storage.ErrEmptyFile) || errors.Is(err, codec.ErrUnsupportedConfig) {
			api.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		api.logger.Error("Upload failed", zap.Error(err))
		api.sendError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    result,
	})
}

// List files handler
func (api *API) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := api.manager.ListFiles(r.Context())
	if err != nil {
		api.sendError(w, "Failed to list files", http.StatusInternalServerError)
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    files,
	})
}

// File status handler
func (api *API) GetFileStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fileID := vars["id"]

	status, err := api.manager.FileStatus(r.Context(), fileID)
	if err != nil {
		api.sendError(w, "File not found", http.StatusNotFound)
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    status,
	})
}

// Reconstruct handler, streams the rebuilt file as an attachment
func (api *API) ReconstructFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fileID := vars["id"]

	data, filename, err := api.manager.Reconstruct(r.Context(), fileID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrFileNotFound):
			api.sendError(w, "File not found", http.StatusNotFound)
		case errors.Is(err, codec.ErrInsufficientShards), errors.Is(err, codec.ErrNoAvailableReplica):
			api.sendError(w, err.Error(), http.StatusServiceUnavailable)
		default:
			api.logger.Error("Reconstruction failed", zap.String("file_id", fileID), zap.Error(err))
			api.sendError(w, "Reconstruction failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	if _, err := w.Write(data); err != nil {
		api.logger.Error("Failed to stream file", zap.Error(err))
	}
}

// Reconstruct info handler
func (api *API) GetReconstructInfo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fileID := vars["id"]

	info, err := api.manager.ReconstructInfo(r.Context(), fileID)
	if err != nil {
		api.sendError(w, "File not found", http.StatusNotFound)
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    info,
	})
}

// Delete file handler
func (api *API) DeleteFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fileID := vars["id"]

	deleted, err := api.manager.DeleteFile(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			api.sendError(w, "File not found", http.StatusNotFound)
			return
		}
		api.sendError(w, "Failed to delete file", http.StatusInternalServerError)
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"file_id":        fileID,
			"status":         "deleted",
			"shards_deleted": deleted,
		},
	})
}

// Delete all files handler
func (api *API) DeleteAllFiles(w http.ResponseWriter, r *http.Request) {
	report, err := api.manager.DeleteAll(r.Context())
	if err != nil {
		api.sendError(w, "Failed to delete files", http.StatusInternalServerError)
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    report,
	})
}

// Nodes status handler
func (api *API) GetNodesStatus(w http.ResponseWriter, r *http.Request) {
	status, err := api.manager.NodesStatus(r.Context())
	if err != nil {
		api.sendError(w, "Failed to get node status", http.StatusInternalServerError)
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    status,
	})
}

// Simulate failure handler
func (api *API) SimulateFailure(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	nodeID := vars["id"]

	if api.registry.MarkFailed(nodeID) {
		api.logger.Info("Node failure simulated", zap.String("node", nodeID))
		api.sendResponse(w, APIResponse{
			Success: true,
			Message: fmt.Sprintf("Node %s failure simulated", nodeID),
			Data:    map[string]string{"status": "failed"},
		})
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Node %s already failed", nodeID),
		Data:    map[string]string{"status": "already_failed"},
	})
}

// Restore node handler
func (api *API) RestoreNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	nodeID := vars["id"]

	if api.registry.Restore(nodeID) {
		api.logger.Info("Node restored", zap.String("node", nodeID))
		api.sendResponse(w, APIResponse{
			Success: true,
			Message: fmt.Sprintf("Node %s restored", nodeID),
			Data:    map[string]string{"status": "online"},
		})
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Node %s was not failed", nodeID),
		Data:    map[string]string{"status": "already_online"},
	})
}

// Failure snapshot handler
func (api *API) GetFailures(w http.ResponseWriter, r *http.Request) {
	snapshot := api.registry.Snapshot()

	history := make(map[string]string, len(snapshot))
	for node, at := range snapshot {
		history[node] = at.Format(time.RFC3339)
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"failed_nodes":    api.registry.FailedNodes(),
			"failure_count":   len(snapshot),
			"failure_history": history,
		},
	})
}

// Clear failures handler
func (api *API) ClearFailures(w http.ResponseWriter, r *http.Request) {
	cleared := api.registry.ClearAll()
	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    map[string]int{"cleared": cleared},
	})
}

// Helper functions
func (api *API) sendResponse(w http.ResponseWriter, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (api *API) sendError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
