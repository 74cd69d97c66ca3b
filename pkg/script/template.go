package script

// DefaultTemplate is the built-in driver loop. It reads indexed commands
// off the pipe, acknowledges each with a last_index frame, evaluates the
// command, and emits the delimited result frame the response reader
// scans for.
const DefaultTemplate = `var commandPipe = "$COMMAND_PIPE";
var resultsPath = "$RESULTS_PATH";
var flushInterval = $FLUSH_INTERVAL;

var target = UIATarget.localTarget();
var host = target.host();
var lastIndex = 0;

function emit(obj) {
  UIALogger.logMessage("OUTPUT_JSON:\n" + JSON.stringify(obj) + "\nEND_OUTPUT");
}

function readCommand() {
  var result = host.performTaskWithPathArgumentsTimeout("/bin/cat", [commandPipe], 10);
  if (result.exitCode !== 0 || !result.stdout) {
    return null;
  }
  var line = result.stdout.replace(/\n$/, "");
  var sep = line.indexOf(":");
  if (sep < 0) {
    return null;
  }
  return {
    index: parseInt(line.substring(0, sep), 10),
    command: line.substring(sep + 1).replace(/\\\\/g, "\\")
  };
}

while (true) {
  var entry = readCommand();
  if (entry === null) {
    target.delay(flushInterval);
    continue;
  }
  if (entry.index <= lastIndex) {
    continue;
  }
  lastIndex = entry.index;
  emit({"last_index": entry.index});

  var status = "success";
  var value = null;
  try {
    value = eval(entry.command);
  } catch (e) {
    status = "error";
    value = e.toString();
  }
  emit({"index": entry.index, "status": status, "value": value});
}
`
