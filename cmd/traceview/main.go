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

// Command traceview serves a live dashboard over the candidate-set
// snapshots an `attack` run writes to its -results-dir, so progress can
// be watched from a browser instead of tailing logs.
package main

import (
	"flag"

	"github.com/golang/glog"

	"github.com/hellman/wboxkit/viewer"
)

var (
	portFlag = flag.Int("port", 8080, "server HTTP port number")
	dirFlag  = flag.String("watch-dir", "results", "directory of *.snapshot.json files to watch")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	glog.Fatal(viewer.Serve(viewer.Options{Port: *portFlag, Dir: *dirFlag}))
}
