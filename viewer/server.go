// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package viewer serves a live dashboard over the candidate-set
// snapshots that cmd/attack writes to its results directory as it
// processes each window, so an operator can watch key-byte recovery
// progress from a browser instead of tailing logs.
package viewer

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/labstack/echo"

	"github.com/hellman/wboxkit/util"
)

const snapshotExt = ".snapshot.json"

// Options configures a viewer server.
type Options struct {
	Port int
	Dir  string // results directory cmd/attack writes *.snapshot.json to
}

// watchDirectoryChanges publishes a broker notification whenever a
// snapshot file in dir is written, created, or removed.
func watchDirectoryChanges(broker *util.Broker, dir string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		glog.Errorf("viewer: NewWatcher failed: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		glog.Errorf("viewer: watcher.Add(%s) failed: %v", dir, err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				glog.Warning("viewer: watcher.Events closed, stopping")
				return
			}
			glog.V(1).Infof("viewer: watcher event: %v", event)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 &&
				strings.HasSuffix(event.Name, snapshotExt) {
				broker.Publish(event)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				glog.Warning("viewer: watcher.Errors closed, stopping")
				return
			}
			glog.Warning("viewer: watcher error: ", err)
		}
	}
}

// waitForUpdate blocks the request goroutine until a new snapshot
// arrives, the client disconnects, or five minutes pass -- whichever
// comes first. Used for the /runs long-poll.
func waitForUpdate(c echo.Context, broker *util.Broker) {
	var wg sync.WaitGroup
	timedOut := time.NewTimer(5 * time.Minute)
	defer timedOut.Stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		updates := broker.Subscribe()
		defer broker.Unsubscribe(updates)

		select {
		case <-timedOut.C:
			glog.V(1).Infof("viewer: long-poll timed out")
		case <-c.Request().Context().Done():
			glog.V(1).Infof("viewer: client disconnected")
		case <-updates:
			glog.V(1).Infof("viewer: received update notification")
		}
	}()

	wg.Wait()
}

// New builds the echo server for opts without starting it, so tests can
// exercise routes with httptest.
func New(opts Options) *echo.Echo {
	watchBroker := util.NewBroker()
	go watchBroker.Start()
	go watchDirectoryChanges(watchBroker, opts.Dir)

	e := echo.New()

	e.File("/", "viewer/index.html")
	e.File("/viewer.js", "viewer/viewer.js")
	e.File("/viewer.css", "viewer/viewer.css")

	// Lists the run names (snapshot files, minus extension) available in
	// the results directory. With ?wait=true (the default), blocks until
	// the directory changes before responding.
	e.GET("/runs", func(c echo.Context) error {
		if c.QueryParam("wait") != "false" {
			waitForUpdate(c, watchBroker)
		}
		files, err := filepath.Glob(path.Join(opts.Dir, "*"+snapshotExt))
		if err != nil {
			glog.Errorf("viewer: Glob failed: %v", err)
			return err
		}
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = strings.TrimSuffix(filepath.Base(f), snapshotExt)
		}
		return c.JSON(http.StatusOK, names)
	})

	// Returns the raw snapshot JSON for a single run.
	e.GET("/runs/:name", func(c echo.Context) error {
		p := path.Join(opts.Dir, c.Param("name")+snapshotExt)
		data, err := os.ReadFile(p)
		if err != nil {
			glog.Errorf("viewer: reading snapshot %s: %v", p, err)
			return c.String(http.StatusNotFound, "unknown run")
		}
		return c.JSONBlob(http.StatusOK, data)
	})

	return e
}

// Serve builds and starts the viewer server, blocking until it exits.
func Serve(opts Options) error {
	e := New(opts)
	return e.Start(fmt.Sprintf(":%d", opts.Port))
}
