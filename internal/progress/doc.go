// Package progress provides progress reporting for a sync run.
//
// The location of every file is printed before its fetch starts. The line
// signals progress, not success: failures are reported separately.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalFiles: len(m),
//	    Workers:    10,
//	    Output:     os.Stdout,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
// # Output Format
//
//	[orthanc-sync] Fetching 5 files from https://orthanc.uclouvain.be/hg/orthanc/raw-file | Workers: 10
//	Resources/CMake/DownloadOrthancFramework.cmake
//	Resources/../Orthanc/Sdk-1.3.1/orthanc/OrthancCPlugin.h
//	[orthanc-sync] Files: 5 completed | 0 failed | 0 skipped
//	[orthanc-sync] Total: 312 KiB in 840ms
package progress
